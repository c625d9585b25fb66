package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opencampus/thesis-match-api/internal/models"
	appErrors "github.com/opencampus/thesis-match-api/pkg/errors"
)

const (
	supervisorID = "6f1c1d2e-8a3b-4c5d-9e0f-1a2b3c4d5e6f"
	thesisID     = "0b9e8d7c-6a5b-4c3d-2e1f-0a9b8c7d6e5f"
	studentOne   = "1a2b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6d"
	studentTwo   = "2b3c4d5e-6f7a-4b9c-8d1e-2f3a4b5c6d7e"
)

type mockThesisRepo struct {
	records  map[string]models.ThesisRecord
	owned    map[models.Degree]int
	created  *models.Thesis
	occupant []string
	deleted  []string
	listErr  error
}

func (m *mockThesisRepo) List(ctx context.Context, filter models.ThesisFilter) ([]models.ThesisRecord, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []models.ThesisRecord
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *mockThesisRepo) FindByID(ctx context.Context, id string) (*models.ThesisRecord, error) {
	if r, ok := m.records[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockThesisRepo) CountBySupervisorAndDegree(ctx context.Context, supervisorID string, degree models.Degree) (int, error) {
	return m.owned[degree], nil
}

func (m *mockThesisRepo) CreateWithOccupants(ctx context.Context, thesis *models.Thesis, studentIDs []string) error {
	thesis.ID = thesisID
	m.created = thesis
	m.occupant = studentIDs
	if m.records == nil {
		m.records = make(map[string]models.ThesisRecord)
	}
	m.records[thesis.ID] = models.ThesisRecord{Thesis: *thesis, StudentIDs: studentIDs}
	return nil
}

func (m *mockThesisRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.records[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.records, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockSupervisors struct {
	byID     map[string]*models.SupervisorDetail
	byUserID map[string]*models.SupervisorDetail
}

func (m *mockSupervisors) FindByID(ctx context.Context, id string) (*models.SupervisorDetail, error) {
	if s, ok := m.byID[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSupervisors) FindByUserID(ctx context.Context, userID string) (*models.SupervisorDetail, error) {
	if s, ok := m.byUserID[userID]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockStudents struct {
	known map[string]bool
}

func (m *mockStudents) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	var found []string
	for _, id := range ids {
		if m.known[id] {
			found = append(found, id)
		}
	}
	return found, nil
}

func (m *mockStudents) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if m.known[id] {
		return &models.StudentDetail{StudentProfile: models.StudentProfile{ID: id}}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudents) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	return nil, sql.ErrNoRows
}

func defaultSupervisor() *models.SupervisorDetail {
	return &models.SupervisorDetail{
		SupervisorProfile: models.SupervisorProfile{ID: supervisorID, UserID: "sup-user"},
	}
}

func newThesisService(repo *mockThesisRepo, sup *models.SupervisorDetail) *ThesisService {
	supervisors := &mockSupervisors{
		byID:     map[string]*models.SupervisorDetail{sup.ID: sup},
		byUserID: map[string]*models.SupervisorDetail{sup.UserID: sup},
	}
	students := &mockStudents{known: map[string]bool{studentOne: true, studentTwo: true}}
	policy := CatalogPolicy{BachelorThesisCap: 8, AdvancedThesisCap: 6, ListCacheTTL: time.Minute}
	return NewThesisService(repo, supervisors, students, nil, nil, policy, validator.New(), zap.NewNop())
}

func supervisorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "sup-user", Role: models.RoleSupervisor}
}

func validCreateRequest() CreateThesisRequest {
	return CreateThesisRequest{
		Title:         "Striping in distributed file systems",
		Description:   "Measure striping strategies",
		Degree:        "BACHELOR",
		Field:         "Computer Science",
		SupervisorID:  supervisorID,
		StudentsLimit: 2,
	}
}

func TestThesisServiceCreate(t *testing.T) {
	repo := &mockThesisRepo{}
	svc := newThesisService(repo, defaultSupervisor())

	view, err := svc.Create(context.Background(), validCreateRequest(), supervisorClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ThesisStatusFree, view.Status)
	assert.Equal(t, 2, view.AvailableSlots)
	require.NotNil(t, repo.created)
	assert.Equal(t, supervisorID, repo.created.SupervisorID)
}

func TestThesisServiceCreateWithInitialStudents(t *testing.T) {
	repo := &mockThesisRepo{}
	svc := newThesisService(repo, defaultSupervisor())

	req := validCreateRequest()
	req.StudentIDs = []string{studentOne, studentTwo}

	view, err := svc.Create(context.Background(), req, supervisorClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ThesisStatusTaken, view.Status)
	assert.Equal(t, 0, view.AvailableSlots)
	assert.Equal(t, []string{studentOne, studentTwo}, repo.occupant)
}

func TestThesisServiceCreateRejectsStudentRole(t *testing.T) {
	svc := newThesisService(&mockThesisRepo{}, defaultSupervisor())

	_, err := svc.Create(context.Background(), validCreateRequest(), &models.JWTClaims{UserID: "x", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestThesisServiceCreateRejectsForeignSupervisor(t *testing.T) {
	svc := newThesisService(&mockThesisRepo{}, defaultSupervisor())

	_, err := svc.Create(context.Background(), validCreateRequest(), &models.JWTClaims{UserID: "other-user", Role: models.RoleSupervisor})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestThesisServiceCreateDegreeCap(t *testing.T) {
	tests := []struct {
		name   string
		degree string
		owned  int
		ok     bool
	}{
		{"bachelor below cap", "BACHELOR", 7, true},
		{"bachelor at cap", "BACHELOR", 8, false},
		{"master below cap", "MASTER", 5, true},
		{"master at cap", "MASTER", 6, false},
		{"doctoral at cap", "DOCTORAL", 6, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockThesisRepo{owned: map[models.Degree]int{models.Degree(tt.degree): tt.owned}}
			svc := newThesisService(repo, defaultSupervisor())

			req := validCreateRequest()
			req.Degree = tt.degree

			_, err := svc.Create(context.Background(), req, supervisorClaims())
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, appErrors.ErrLimitExceeded.Code, appErrors.FromError(err).Code)
			}
		})
	}
}

func TestThesisServiceCreatePersonalLimit(t *testing.T) {
	limit := 1
	sup := defaultSupervisor()
	sup.ThesisLimit = &limit
	sup.ThesisIDs = []string{thesisID}
	svc := newThesisService(&mockThesisRepo{}, sup)

	_, err := svc.Create(context.Background(), validCreateRequest(), supervisorClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLimitExceeded.Code, appErrors.FromError(err).Code)
}

func TestThesisServiceCreateFieldAllowList(t *testing.T) {
	sup := defaultSupervisor()
	sup.AllowedFields = []string{"Mathematics"}
	svc := newThesisService(&mockThesisRepo{}, sup)

	_, err := svc.Create(context.Background(), validCreateRequest(), supervisorClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestThesisServiceCreateDuplicateStudents(t *testing.T) {
	svc := newThesisService(&mockThesisRepo{}, defaultSupervisor())

	req := validCreateRequest()
	req.StudentIDs = []string{studentOne, studentOne}

	_, err := svc.Create(context.Background(), req, supervisorClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestThesisServiceCreateTooManyInitialStudents(t *testing.T) {
	svc := newThesisService(&mockThesisRepo{}, defaultSupervisor())

	req := validCreateRequest()
	req.StudentsLimit = 1
	req.StudentIDs = []string{studentOne, studentTwo}

	_, err := svc.Create(context.Background(), req, supervisorClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLimitExceeded.Code, appErrors.FromError(err).Code)
}

func TestThesisServiceCreateUnknownStudent(t *testing.T) {
	svc := newThesisService(&mockThesisRepo{}, defaultSupervisor())

	req := validCreateRequest()
	req.StudentIDs = []string{"3c4d5e6f-7a8b-4c0d-9e1f-3a4b5c6d7e8f"}

	_, err := svc.Create(context.Background(), req, supervisorClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestThesisServiceListRecomputesStatus(t *testing.T) {
	repo := &mockThesisRepo{records: map[string]models.ThesisRecord{
		"full": {
			Thesis:     models.Thesis{ID: "full", StudentsLimit: 1, Status: models.ThesisStatusFree, Degree: models.DegreeBachelor},
			StudentIDs: []string{studentOne},
		},
	}}
	svc := newThesisService(repo, defaultSupervisor())

	page, hit, err := svc.List(context.Background(), models.ThesisFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, page.Theses, 1)
	assert.Equal(t, models.ThesisStatusTaken, page.Theses[0].Status)
	assert.Equal(t, 0, page.Theses[0].AvailableSlots)
}

func TestThesisServiceListStatusFilterAfterRecompute(t *testing.T) {
	repo := &mockThesisRepo{records: map[string]models.ThesisRecord{
		// stored FREE but every seat is occupied
		"full": {
			Thesis:     models.Thesis{ID: "full", StudentsLimit: 1, Status: models.ThesisStatusFree},
			StudentIDs: []string{studentOne},
		},
		"open": {
			Thesis: models.Thesis{ID: "open", StudentsLimit: 2, Status: models.ThesisStatusFree},
		},
	}}
	svc := newThesisService(repo, defaultSupervisor())

	page, _, err := svc.List(context.Background(), models.ThesisFilter{Status: models.ThesisStatusFree})
	require.NoError(t, err)
	require.Len(t, page.Theses, 1)
	assert.Equal(t, "open", page.Theses[0].ID)
}

func TestThesisServiceGetKeepsArchivedStatus(t *testing.T) {
	repo := &mockThesisRepo{records: map[string]models.ThesisRecord{
		thesisID: {
			Thesis: models.Thesis{ID: thesisID, StudentsLimit: 3, Status: models.ThesisStatusArchived},
		},
	}}
	svc := newThesisService(repo, defaultSupervisor())

	view, err := svc.Get(context.Background(), thesisID)
	require.NoError(t, err)
	assert.Equal(t, models.ThesisStatusArchived, view.Status)
	assert.Equal(t, 3, view.AvailableSlots)
}

func TestThesisServiceGetNotFound(t *testing.T) {
	svc := newThesisService(&mockThesisRepo{}, defaultSupervisor())

	_, err := svc.Get(context.Background(), thesisID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestThesisServiceDeleteOwnerOnly(t *testing.T) {
	repo := &mockThesisRepo{records: map[string]models.ThesisRecord{
		thesisID: {Thesis: models.Thesis{ID: thesisID, SupervisorID: supervisorID}},
	}}
	svc := newThesisService(repo, defaultSupervisor())

	err := svc.Delete(context.Background(), thesisID, &models.JWTClaims{UserID: "stranger", Role: models.RoleSupervisor})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), thesisID, supervisorClaims())
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, thesisID)
}

func TestThesisServiceExportCatalogFormats(t *testing.T) {
	repo := &mockThesisRepo{records: map[string]models.ThesisRecord{
		thesisID: {Thesis: models.Thesis{ID: thesisID, Title: "Topic", Degree: models.DegreeMaster, StudentsLimit: 1}},
	}}
	svc := newThesisService(repo, defaultSupervisor())

	payload, contentType, err := svc.ExportCatalog(context.Background(), models.ThesisFilter{}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.NotEmpty(t, payload)

	payload, contentType, err = svc.ExportCatalog(context.Background(), models.ThesisFilter{}, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.NotEmpty(t, payload)

	_, _, err = svc.ExportCatalog(context.Background(), models.ThesisFilter{}, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
