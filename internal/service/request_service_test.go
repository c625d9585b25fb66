package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opencampus/thesis-match-api/internal/models"
	"github.com/opencampus/thesis-match-api/internal/repository"
	appErrors "github.com/opencampus/thesis-match-api/pkg/errors"
)

const (
	requestID       = "4d5e6f7a-8b9c-4d1e-8f2a-4b5c6d7e8f9a"
	studentProfile1 = "5e6f7a8b-9c0d-4e2f-8a3b-5c6d7e8f9a0b"
)

type mockRequestRepo struct {
	requests   map[string]models.EnrollmentRequest
	approveErr error
	approved   []string
	statuses   map[string]models.RequestStatus
	deleted    []string
}

func (m *mockRequestRepo) Create(ctx context.Context, request *models.EnrollmentRequest) error {
	if m.requests == nil {
		m.requests = make(map[string]models.EnrollmentRequest)
	}
	if request.ID == "" {
		request.ID = requestID
	}
	m.requests[request.ID] = *request
	return nil
}

func (m *mockRequestRepo) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRequestRepo) FindDetailByID(ctx context.Context, id string) (*models.RequestDetail, error) {
	if r, ok := m.requests[id]; ok {
		return &models.RequestDetail{EnrollmentRequest: r}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRequestRepo) ListBySupervisor(ctx context.Context, supervisorID string) ([]models.RequestDetail, error) {
	var out []models.RequestDetail
	for _, r := range m.requests {
		if r.SupervisorID == supervisorID {
			out = append(out, models.RequestDetail{EnrollmentRequest: r})
		}
	}
	return out, nil
}

func (m *mockRequestRepo) ListByStudent(ctx context.Context, studentID string) ([]models.RequestDetail, error) {
	var out []models.RequestDetail
	for _, r := range m.requests {
		if r.StudentID == studentID {
			out = append(out, models.RequestDetail{EnrollmentRequest: r})
		}
	}
	return out, nil
}

func (m *mockRequestRepo) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error {
	r, ok := m.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	if r.Status.Terminal() {
		return repository.ErrRequestDecided
	}
	r.Status = status
	m.requests[id] = r
	if m.statuses == nil {
		m.statuses = make(map[string]models.RequestStatus)
	}
	m.statuses[id] = status
	return nil
}

func (m *mockRequestRepo) Approve(ctx context.Context, requestID, thesisID string) error {
	r, ok := m.requests[requestID]
	if !ok {
		return sql.ErrNoRows
	}
	if r.Status.Terminal() {
		return repository.ErrRequestDecided
	}
	if m.approveErr != nil {
		return m.approveErr
	}
	r.Status = models.RequestStatusApproved
	m.requests[requestID] = r
	m.approved = append(m.approved, requestID)
	return nil
}

func (m *mockRequestRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.requests[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.requests, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockProfileStudents struct {
	byUserID map[string]*models.StudentDetail
}

func (m *mockProfileStudents) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	for _, s := range m.byUserID {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockProfileStudents) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	if s, ok := m.byUserID[userID]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockInvalidator struct {
	calls int
}

func (m *mockInvalidator) InvalidateCatalog(ctx context.Context) {
	m.calls++
}

func newRequestService(repo *mockRequestRepo, invalidator catalogInvalidator) *RequestService {
	students := &mockProfileStudents{byUserID: map[string]*models.StudentDetail{
		"stu-user": {StudentProfile: models.StudentProfile{ID: studentProfile1, UserID: "stu-user"}},
	}}
	supervisors := &mockSupervisors{
		byID:     map[string]*models.SupervisorDetail{supervisorID: defaultSupervisor()},
		byUserID: map[string]*models.SupervisorDetail{"sup-user": defaultSupervisor()},
	}
	return NewRequestService(repo, students, supervisors, invalidator, validator.New(), zap.NewNop())
}

func pendingRequest() models.EnrollmentRequest {
	id := thesisID
	return models.EnrollmentRequest{
		ID:           requestID,
		StudentID:    studentProfile1,
		SupervisorID: supervisorID,
		ThesisID:     &id,
		Status:       models.RequestStatusPending,
		Type:         models.RequestTypeThesisEnrollment,
	}
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "stu-user", Role: models.RoleStudent}
}

func TestRequestServiceCreate(t *testing.T) {
	repo := &mockRequestRepo{}
	svc := newRequestService(repo, nil)

	detail, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		SupervisorID: supervisorID,
		ThesisTitle:  "Striping in distributed file systems",
		Description:  "I would like to work on this topic",
		ThesisID:     thesisID,
	}, studentClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, detail.Status)
	assert.Equal(t, models.RequestTypeThesisEnrollment, detail.Type)
	assert.Equal(t, studentProfile1, detail.StudentID)
	assert.Contains(t, detail.Content, "Striping in distributed file systems")
}

func TestRequestServiceCreateWithoutProfile(t *testing.T) {
	svc := newRequestService(&mockRequestRepo{}, nil)

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		SupervisorID: supervisorID,
		ThesisTitle:  "Topic",
		Description:  "Text",
		ThesisID:     thesisID,
	}, &models.JWTClaims{UserID: "nobody", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceApprove(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{requestID: pendingRequest()}}
	invalidator := &mockInvalidator{}
	svc := newRequestService(repo, invalidator)

	detail, err := svc.SetStatus(context.Background(), requestID, UpdateRequestStatusRequest{Status: "APPROVED"}, &models.JWTClaims{UserID: "sup-user", Role: models.RoleSupervisor})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, detail.Status)
	assert.Contains(t, repo.approved, requestID)
	assert.Equal(t, 1, invalidator.calls)
}

func TestRequestServiceApproveFullThesis(t *testing.T) {
	repo := &mockRequestRepo{
		requests:   map[string]models.EnrollmentRequest{requestID: pendingRequest()},
		approveErr: repository.ErrThesisFull,
	}
	invalidator := &mockInvalidator{}
	svc := newRequestService(repo, invalidator)

	_, err := svc.SetStatus(context.Background(), requestID, UpdateRequestStatusRequest{Status: "APPROVED"}, &models.JWTClaims{UserID: "sup-user", Role: models.RoleSupervisor})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLimitExceeded.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.approved)
	assert.Zero(t, invalidator.calls)

	// the request stays pending when the seat grab fails
	stored := repo.requests[requestID]
	assert.Equal(t, models.RequestStatusPending, stored.Status)
}

func TestRequestServiceApproveDecidedRequest(t *testing.T) {
	decided := pendingRequest()
	decided.Status = models.RequestStatusRejected
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{requestID: decided}}
	svc := newRequestService(repo, nil)

	_, err := svc.SetStatus(context.Background(), requestID, UpdateRequestStatusRequest{Status: "APPROVED"}, &models.JWTClaims{UserID: "sup-user", Role: models.RoleSupervisor})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceRejectDecidedRequest(t *testing.T) {
	decided := pendingRequest()
	decided.Status = models.RequestStatusApproved
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{requestID: decided}}
	svc := newRequestService(repo, nil)

	_, err := svc.SetStatus(context.Background(), requestID, UpdateRequestStatusRequest{Status: "REJECTED"}, &models.JWTClaims{UserID: "sup-user", Role: models.RoleSupervisor})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceReject(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{requestID: pendingRequest()}}
	svc := newRequestService(repo, nil)

	detail, err := svc.SetStatus(context.Background(), requestID, UpdateRequestStatusRequest{Status: "REJECTED"}, &models.JWTClaims{UserID: "sup-user", Role: models.RoleSupervisor})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, detail.Status)
}

func TestRequestServiceSetStatusForeignSupervisor(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{requestID: pendingRequest()}}
	svc := newRequestService(repo, nil)

	_, err := svc.SetStatus(context.Background(), requestID, UpdateRequestStatusRequest{Status: "REJECTED"}, &models.JWTClaims{UserID: "stranger", Role: models.RoleSupervisor})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceSetStatusUnknownStatus(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{requestID: pendingRequest()}}
	svc := newRequestService(repo, nil)

	_, err := svc.SetStatus(context.Background(), requestID, UpdateRequestStatusRequest{Status: "MAYBE"}, &models.JWTClaims{UserID: "sup-user", Role: models.RoleSupervisor})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceDeletePermissions(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{requestID: pendingRequest()}}
	svc := newRequestService(repo, nil)

	err := svc.Delete(context.Background(), requestID, &models.JWTClaims{UserID: "stranger", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), requestID, studentClaims())
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, requestID)
}

func TestRequestServiceListBySupervisor(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{requestID: pendingRequest()}}
	svc := newRequestService(repo, nil)

	details, err := svc.ListBySupervisor(context.Background(), supervisorID)
	require.NoError(t, err)
	assert.Len(t, details, 1)

	_, err = svc.ListBySupervisor(context.Background(), "not-a-uuid")
	require.Error(t, err)
}
