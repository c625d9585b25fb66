package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencampus/thesis-match-api/internal/models"
	appErrors "github.com/opencampus/thesis-match-api/pkg/errors"
	"github.com/opencampus/thesis-match-api/pkg/export"
)

type thesisRepository interface {
	List(ctx context.Context, filter models.ThesisFilter) ([]models.ThesisRecord, int, error)
	FindByID(ctx context.Context, id string) (*models.ThesisRecord, error)
	CountBySupervisorAndDegree(ctx context.Context, supervisorID string, degree models.Degree) (int, error)
	CreateWithOccupants(ctx context.Context, thesis *models.Thesis, studentIDs []string) error
	Delete(ctx context.Context, id string) error
}

type supervisorReader interface {
	FindByID(ctx context.Context, id string) (*models.SupervisorDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.SupervisorDetail, error)
}

type studentResolver interface {
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const thesisCachePrefix = "theses:list:"

// CatalogPolicy bounds how many theses a supervisor may own per degree tier.
type CatalogPolicy struct {
	BachelorThesisCap int
	AdvancedThesisCap int
	ListCacheTTL      time.Duration
	CacheEnabled      bool
}

// CapFor resolves the per-supervisor thesis cap for a degree tier.
func (p CatalogPolicy) CapFor(degree models.Degree) int {
	if degree == models.DegreeBachelor {
		return p.BachelorThesisCap
	}
	return p.AdvancedThesisCap
}

// CreateThesisRequest describes thesis creation payload.
type CreateThesisRequest struct {
	Title         string   `json:"title" validate:"required"`
	Description   string   `json:"description" validate:"required"`
	Degree        string   `json:"degree" validate:"required"`
	Field         string   `json:"field" validate:"required"`
	SupervisorID  string   `json:"supervisor" validate:"required"`
	StudentIDs    []string `json:"students"`
	Tags          []string `json:"tags"`
	StudentsLimit int      `json:"students_limit" validate:"required,min=1"`
}

// CatalogPage is the cached unit for thesis listings.
type CatalogPage struct {
	Theses     []models.ThesisView `json:"theses"`
	Pagination *models.Pagination  `json:"pagination"`
}

// ThesisService owns the thesis catalog: listing with read-time status
// recomputation, creation-time eligibility rules and deletion.
type ThesisService struct {
	repo        thesisRepository
	supervisors supervisorReader
	students    studentResolver
	cache       catalogCache
	metrics     *MetricsService
	policy      CatalogPolicy
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewThesisService constructs ThesisService.
func NewThesisService(repo thesisRepository, supervisors supervisorReader, students studentResolver, cache catalogCache, metrics *MetricsService, policy CatalogPolicy, validate *validator.Validate, logger *zap.Logger) *ThesisService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThesisService{repo: repo, supervisors: supervisors, students: students, cache: cache, metrics: metrics, policy: policy, validator: validate, logger: logger}
}

// List returns thesis views matching the filter. Degree, field, tag and
// supervisor predicates are pushed to storage, the status predicate runs
// against the recomputed status. The second return reports a cache hit.
func (s *ThesisService) List(ctx context.Context, filter models.ThesisFilter) (*CatalogPage, bool, error) {
	key := s.cacheKey(filter)
	if s.cacheEnabled() {
		start := time.Now()
		var cached CatalogPage
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			s.observeCache(true, time.Since(start))
			return &cached, true, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache lookup failed", zap.Error(err))
		}
		s.observeCache(false, time.Since(start))
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list theses")
	}

	views := make([]models.ThesisView, 0, len(records))
	for _, record := range records {
		view := record.Recompute()
		if filter.Status != "" && view.Status != filter.Status {
			continue
		}
		views = append(views, view)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	result := &CatalogPage{
		Theses:     views,
		Pagination: &models.Pagination{Page: page, PageSize: size, TotalCount: total},
	}

	if s.cacheEnabled() {
		if err := s.cache.Set(ctx, key, result, s.policy.ListCacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return result, false, nil
}

// Get returns a single thesis view with the recomputed status.
func (s *ThesisService) Get(ctx context.Context, id string) (*models.ThesisView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed thesis id")
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "thesis not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load thesis")
	}
	view := record.Recompute()
	return &view, nil
}

// Create publishes a new thesis topic after checking every creation-time
// rule: actor role, degree validity, per-degree supervisor cap, optional
// field allow-list and initial occupant eligibility. The thesis row and its
// occupant rows are persisted atomically.
func (s *ThesisService) Create(ctx context.Context, req CreateThesisRequest, claims *models.JWTClaims) (*models.ThesisView, error) {
	if claims == nil || (claims.Role != models.RoleSupervisor && claims.Role != models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only supervisors may publish theses")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid thesis payload")
	}

	degree := models.Degree(strings.ToUpper(req.Degree))
	if !degree.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown degree: "+req.Degree)
	}
	if _, err := uuid.Parse(req.SupervisorID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed supervisor id")
	}

	supervisor, err := s.supervisors.FindByID(ctx, req.SupervisorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "supervisor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load supervisor")
	}
	if claims.Role == models.RoleSupervisor && supervisor.UserID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "supervisors may only publish own theses")
	}
	if !supervisor.AllowsField(req.Field) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "field not allowed for this supervisor")
	}
	if supervisor.ThesisLimit != nil && len(supervisor.ThesisIDs) >= *supervisor.ThesisLimit {
		return nil, appErrors.Clone(appErrors.ErrLimitExceeded, "supervisor thesis limit reached")
	}

	owned, err := s.repo.CountBySupervisorAndDegree(ctx, req.SupervisorID, degree)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count supervisor theses")
	}
	if tierCap := s.policy.CapFor(degree); owned >= tierCap {
		return nil, appErrors.Clone(appErrors.ErrLimitExceeded,
			fmt.Sprintf("supervisor already owns %d %s theses (cap %d)", owned, degree, tierCap))
	}

	if len(req.StudentIDs) > 0 {
		if hasDuplicates(req.StudentIDs) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate student ids")
		}
		if len(req.StudentIDs) > req.StudentsLimit {
			return nil, appErrors.Clone(appErrors.ErrLimitExceeded, "initial students exceed the seat limit")
		}
		found, err := s.students.ExistingIDs(ctx, req.StudentIDs)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve students")
		}
		if len(found) != len(req.StudentIDs) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "one or more students not found")
		}
	}

	status := models.ThesisStatusFree
	if len(req.StudentIDs) > 0 {
		status = models.ThesisStatusTaken
	}

	thesis := &models.Thesis{
		Title:         req.Title,
		Description:   req.Description,
		Degree:        degree,
		Field:         req.Field,
		Tags:          req.Tags,
		StudentsLimit: req.StudentsLimit,
		Status:        status,
		SupervisorID:  req.SupervisorID,
	}
	if err := s.repo.CreateWithOccupants(ctx, thesis, req.StudentIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist thesis")
	}

	s.InvalidateCatalog(ctx)
	return s.Get(ctx, thesis.ID)
}

// Delete removes a thesis. Only the owning supervisor or an admin may do so.
func (s *ThesisService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	if _, err := uuid.Parse(id); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "malformed thesis id")
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "thesis not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load thesis")
	}

	if claims == nil {
		return appErrors.ErrForbidden
	}
	if claims.Role != models.RoleAdmin {
		owner, err := s.supervisors.FindByUserID(ctx, claims.UserID)
		if err != nil || owner.ID != record.SupervisorID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the owning supervisor may delete a thesis")
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "thesis not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete thesis")
	}

	s.InvalidateCatalog(ctx)
	return nil
}

// ExportCatalog renders the filtered catalog as CSV or PDF.
func (s *ThesisService) ExportCatalog(ctx context.Context, filter models.ThesisFilter, format string) ([]byte, string, error) {
	filter.Page = 1
	if filter.PageSize <= 0 {
		filter.PageSize = 100
	}
	records, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list theses")
	}

	dataset := export.Dataset{
		Headers: []string{"Title", "Degree", "Field", "Status", "Occupied", "Limit", "Tags"},
	}
	for _, record := range records {
		view := record.Recompute()
		if filter.Status != "" && view.Status != filter.Status {
			continue
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Title":    view.Title,
			"Degree":   string(view.Degree),
			"Field":    view.Field,
			"Status":   string(view.Status),
			"Occupied": strconv.Itoa(len(view.StudentIDs)),
			"Limit":    strconv.Itoa(view.StudentsLimit),
			"Tags":     strings.Join(view.Tags, ", "),
		})
	}

	switch strings.ToLower(format) {
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, "Thesis catalog")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format: "+format)
	}
}

// InvalidateCatalog drops every cached catalog listing. Called after any
// mutation that changes occupancy or the topic set.
func (s *ThesisService) InvalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, thesisCachePrefix+"*"); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func (s *ThesisService) cacheEnabled() bool {
	return s.cache != nil && s.policy.CacheEnabled
}

func (s *ThesisService) cacheKey(filter models.ThesisFilter) string {
	return thesisCachePrefix + strings.Join([]string{
		string(filter.Degree),
		filter.Field,
		strings.Join(filter.Tags, "|"),
		filter.SupervisorID,
		string(filter.Status),
		strconv.Itoa(filter.Page),
		strconv.Itoa(filter.PageSize),
	}, ":")
}

func (s *ThesisService) observeCache(hit bool, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveCacheLookup(hit, duration)
}

func hasDuplicates(ids []string) bool {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
