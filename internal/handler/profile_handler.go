package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencampus/thesis-match-api/internal/service"
	appErrors "github.com/opencampus/thesis-match-api/pkg/errors"
	"github.com/opencampus/thesis-match-api/pkg/response"
)

// ProfileHandler wires HTTP endpoints to the profile service.
type ProfileHandler struct {
	service *service.ProfileService
}

// NewProfileHandler creates a new handler.
func NewProfileHandler(svc *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{service: svc}
}

// GetStudent godoc
// @Summary Get student profile
// @Tags Profiles
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id} [get]
func (h *ProfileHandler) GetStudent(c *gin.Context) {
	detail, err := h.service.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// GetSupervisor godoc
// @Summary Get supervisor profile
// @Tags Profiles
// @Produce json
// @Param id path string true "Supervisor ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /supervisors/{id} [get]
func (h *ProfileHandler) GetSupervisor(c *gin.Context) {
	detail, err := h.service.GetSupervisor(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// UpdateSupervisor godoc
// @Summary Update supervisor profile
// @Description Update a supervisor's title, interests, thesis limit and allowed fields
// @Tags Profiles
// @Accept json
// @Produce json
// @Param id path string true "Supervisor ID"
// @Param payload body service.UpdateSupervisorRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /supervisors/{id} [put]
func (h *ProfileHandler) UpdateSupervisor(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateSupervisorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}

	detail, err := h.service.UpdateSupervisor(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}
