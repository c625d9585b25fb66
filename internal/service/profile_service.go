package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencampus/thesis-match-api/internal/models"
	appErrors "github.com/opencampus/thesis-match-api/pkg/errors"
)

type supervisorRepository interface {
	supervisorReader
	Update(ctx context.Context, profile *models.SupervisorProfile) error
}

// UpdateSupervisorRequest describes mutable supervisor profile fields.
type UpdateSupervisorRequest struct {
	AcademicTitle string   `json:"academic_title" validate:"required"`
	Interests     string   `json:"interests"`
	ThesisLimit   *int     `json:"thesis_limit" validate:"omitempty,min=1"`
	AllowedFields []string `json:"allowed_fields"`
}

// ProfileService serves student and supervisor profile reads and supervisor
// profile updates.
type ProfileService struct {
	students    studentProfileReader
	supervisors supervisorRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewProfileService constructs ProfileService.
func NewProfileService(students studentProfileReader, supervisors supervisorRepository, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{students: students, supervisors: supervisors, validator: validate, logger: logger}
}

// GetStudent returns a student profile with account info and enrollments.
func (s *ProfileService) GetStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	detail, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return detail, nil
}

// GetSupervisor returns a supervisor profile with account info and topics.
func (s *ProfileService) GetSupervisor(ctx context.Context, id string) (*models.SupervisorDetail, error) {
	detail, err := s.supervisors.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "supervisor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load supervisor")
	}
	return detail, nil
}

// UpdateSupervisor mutates the supervisor's own profile. Admins may edit any
// profile.
func (s *ProfileService) UpdateSupervisor(ctx context.Context, id string, req UpdateSupervisorRequest, claims *models.JWTClaims) (*models.SupervisorDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	detail, err := s.supervisors.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "supervisor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load supervisor")
	}
	if claims == nil || (claims.Role != models.RoleAdmin && detail.UserID != claims.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "may only edit own profile")
	}

	profile := detail.SupervisorProfile
	profile.AcademicTitle = req.AcademicTitle
	profile.Interests = req.Interests
	profile.ThesisLimit = req.ThesisLimit
	profile.AllowedFields = req.AllowedFields

	if err := s.supervisors.Update(ctx, &profile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "supervisor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update supervisor")
	}

	return s.GetSupervisor(ctx, id)
}
