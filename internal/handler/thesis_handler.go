package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opencampus/thesis-match-api/internal/middleware"
	"github.com/opencampus/thesis-match-api/internal/models"
	"github.com/opencampus/thesis-match-api/internal/service"
	appErrors "github.com/opencampus/thesis-match-api/pkg/errors"
	"github.com/opencampus/thesis-match-api/pkg/response"
)

// ThesisHandler wires HTTP endpoints to the thesis catalog service.
type ThesisHandler struct {
	service *service.ThesisService
}

// NewThesisHandler creates a new handler.
func NewThesisHandler(svc *service.ThesisService) *ThesisHandler {
	return &ThesisHandler{service: svc}
}

// List godoc
// @Summary List thesis catalog
// @Description List theses with optional degree, field, tag, supervisor and status filters
// @Tags Theses
// @Produce json
// @Param degree query string false "Degree tier filter"
// @Param field query string false "Field filter"
// @Param tags query string false "Comma separated tag filter"
// @Param supervisor query string false "Supervisor ID filter"
// @Param status query string false "Status filter (applied after recomputation)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Security BearerAuth
// @Router /theses [get]
func (h *ThesisHandler) List(c *gin.Context) {
	filter := parseThesisFilter(c)

	page, hit, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, page.Theses, page.Pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get thesis
// @Description Fetch a single thesis with recomputed status and free seats
// @Tags Theses
// @Produce json
// @Param id path string true "Thesis ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /theses/{id} [get]
func (h *ThesisHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, view, nil)
}

// Create godoc
// @Summary Create thesis
// @Description Publish a new thesis topic, optionally with initial occupants
// @Tags Theses
// @Accept json
// @Produce json
// @Param payload body service.CreateThesisRequest true "Thesis payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /theses [post]
func (h *ThesisHandler) Create(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateThesisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid thesis payload"))
		return
	}

	view, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, view)
}

// Delete godoc
// @Summary Delete thesis
// @Description Remove a thesis topic. Owning supervisor or admin only.
// @Tags Theses
// @Produce json
// @Param id path string true "Thesis ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /theses/{id} [delete]
func (h *ThesisHandler) Delete(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Export godoc
// @Summary Export thesis catalog
// @Description Export the filtered catalog as CSV or PDF
// @Tags Theses
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "Export format: csv (default) or pdf"
// @Success 200 {string} string "file"
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /theses/export [get]
func (h *ThesisHandler) Export(c *gin.Context) {
	filter := parseThesisFilter(c)
	format := c.DefaultQuery("format", "csv")

	payload, contentType, err := h.service.ExportCatalog(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := "thesis-catalog.csv"
	if contentType == "application/pdf" {
		filename = "thesis-catalog.pdf"
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, payload)
}

func parseThesisFilter(c *gin.Context) models.ThesisFilter {
	filter := models.ThesisFilter{
		Degree:       models.Degree(strings.ToUpper(strings.TrimSpace(c.Query("degree")))),
		Field:        strings.TrimSpace(c.Query("field")),
		SupervisorID: strings.TrimSpace(c.Query("supervisor")),
		Status:       models.ThesisStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
	}
	if raw := c.Query("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = pageSize
	}
	return filter
}
