package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencampus/thesis-match-api/internal/models"
	"github.com/opencampus/thesis-match-api/internal/repository"
	appErrors "github.com/opencampus/thesis-match-api/pkg/errors"
)

type requestRepository interface {
	Create(ctx context.Context, request *models.EnrollmentRequest) error
	FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	FindDetailByID(ctx context.Context, id string) (*models.RequestDetail, error)
	ListBySupervisor(ctx context.Context, supervisorID string) ([]models.RequestDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.RequestDetail, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error
	Approve(ctx context.Context, requestID, thesisID string) error
	Delete(ctx context.Context, id string) error
}

type studentProfileReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
}

type catalogInvalidator interface {
	InvalidateCatalog(ctx context.Context)
}

// CreateEnrollmentRequest describes a student's ask to join a thesis.
type CreateEnrollmentRequest struct {
	SupervisorID string `json:"supervisor" validate:"required"`
	ThesisTitle  string `json:"thesis_title" validate:"required"`
	Description  string `json:"description" validate:"required"`
	ThesisID     string `json:"thesis_id" validate:"required"`
}

// UpdateRequestStatusRequest describes a status transition.
type UpdateRequestStatusRequest struct {
	Status   string `json:"status" validate:"required,oneof=PENDING APPROVED REJECTED IN_PROGRESS COMPLETED"`
	ThesisID string `json:"thesis_id"`
}

// RequestService orchestrates the enrollment request lifecycle. Requests are
// created PENDING, adjudicated by the owning supervisor, and approval claims
// a thesis seat atomically with the status flip: the request is never left
// APPROVED without its seat, and capacity is checked under a row lock so
// concurrent approvals cannot overfill a thesis.
type RequestService struct {
	repo        requestRepository
	students    studentProfileReader
	supervisors supervisorReader
	catalog     catalogInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewRequestService constructs RequestService.
func NewRequestService(repo requestRepository, students studentProfileReader, supervisors supervisorReader, catalog catalogInvalidator, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{repo: repo, students: students, supervisors: supervisors, catalog: catalog, validator: validate, logger: logger}
}

// Create files a PENDING enrollment request on behalf of the acting student.
// Capacity is deliberately not checked here: many students may ask for the
// same seat, the supervisor adjudicates at approval time.
func (s *RequestService) Create(ctx context.Context, req CreateEnrollmentRequest, claims *models.JWTClaims) (*models.RequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if _, err := uuid.Parse(req.SupervisorID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed supervisor id")
	}
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	student, err := s.students.FindByUserID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	thesisID := req.ThesisID
	request := &models.EnrollmentRequest{
		StudentID:    student.ID,
		SupervisorID: req.SupervisorID,
		ThesisID:     &thesisID,
		Content:      req.ThesisTitle + "\n\n" + req.Description,
		Status:       models.RequestStatusPending,
		Type:         models.RequestTypeThesisEnrollment,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	return s.detail(ctx, request.ID)
}

// SetStatus transitions a request. APPROVED additionally claims the thesis
// seat in the same storage transaction; a missing thesis or a full occupant
// list aborts the whole operation and the request stays PENDING. Transitions
// out of a terminal state are rejected.
func (s *RequestService) SetStatus(ctx context.Context, id string, req UpdateRequestStatusRequest, claims *models.JWTClaims) (*models.RequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	status := models.RequestStatus(strings.ToUpper(req.Status))

	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}

	if err := s.authorizeSupervisor(ctx, request.SupervisorID, claims); err != nil {
		return nil, err
	}

	if status == models.RequestStatusApproved {
		thesisID := req.ThesisID
		if thesisID == "" && request.ThesisID != nil {
			thesisID = *request.ThesisID
		}
		if thesisID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "approval requires a thesis id")
		}
		if err := s.repo.Approve(ctx, id, thesisID); err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return nil, appErrors.Clone(appErrors.ErrNotFound, "thesis not found")
			case errors.Is(err, repository.ErrThesisFull):
				return nil, appErrors.Clone(appErrors.ErrLimitExceeded, "thesis has no free seats")
			case errors.Is(err, repository.ErrRequestDecided):
				return nil, appErrors.Clone(appErrors.ErrConflict, "request already decided")
			default:
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve request")
			}
		}
		if s.catalog != nil {
			s.catalog.InvalidateCatalog(ctx)
		}
		s.logger.Info("enrollment request approved",
			zap.String("request_id", id),
			zap.String("thesis_id", thesisID),
			zap.String("student_id", request.StudentID))
	} else {
		if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
			case errors.Is(err, repository.ErrRequestDecided):
				return nil, appErrors.Clone(appErrors.ErrConflict, "request already decided")
			default:
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request status")
			}
		}
	}

	return s.detail(ctx, id)
}

// ListBySupervisor returns requests targeting the supervisor, enriched with
// the student's account fields for display.
func (s *RequestService) ListBySupervisor(ctx context.Context, supervisorID string) ([]models.RequestDetail, error) {
	if _, err := uuid.Parse(supervisorID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed supervisor id")
	}
	details, err := s.repo.ListBySupervisor(ctx, supervisorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return details, nil
}

// ListByStudent returns requests filed by the student.
func (s *RequestService) ListByStudent(ctx context.Context, studentID string) ([]models.RequestDetail, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed student id")
	}
	details, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return details, nil
}

// Delete removes a request. Only the filing student, the targeted supervisor
// or an admin may delete it.
func (s *RequestService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}

	if !s.mayDelete(ctx, request, claims) {
		return appErrors.Clone(appErrors.ErrForbidden, "not a party of this request")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete request")
	}
	return nil
}

func (s *RequestService) authorizeSupervisor(ctx context.Context, supervisorID string, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleAdmin {
		return nil
	}
	if claims.Role != models.RoleSupervisor {
		return appErrors.Clone(appErrors.ErrForbidden, "only the targeted supervisor may decide a request")
	}
	profile, err := s.supervisors.FindByUserID(ctx, claims.UserID)
	if err != nil || profile.ID != supervisorID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the targeted supervisor may decide a request")
	}
	return nil
}

func (s *RequestService) mayDelete(ctx context.Context, request *models.EnrollmentRequest, claims *models.JWTClaims) bool {
	if claims == nil {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleStudent:
		profile, err := s.students.FindByUserID(ctx, claims.UserID)
		return err == nil && profile.ID == request.StudentID
	case models.RoleSupervisor:
		profile, err := s.supervisors.FindByUserID(ctx, claims.UserID)
		return err == nil && profile.ID == request.SupervisorID
	}
	return false
}

func (s *RequestService) detail(ctx context.Context, id string) (*models.RequestDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request detail")
	}
	return detail, nil
}
