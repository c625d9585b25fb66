package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opencampus/thesis-match-api/internal/service"
	appErrors "github.com/opencampus/thesis-match-api/pkg/errors"
	"github.com/opencampus/thesis-match-api/pkg/response"
)

// ChatHandler wires HTTP endpoints to the chat service.
type ChatHandler struct {
	service *service.ChatService
}

// NewChatHandler creates a new handler.
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// Create godoc
// @Summary Create chat
// @Description Open a pairwise chat. An existing chat for the same pair is returned with 409.
// @Tags Chats
// @Accept json
// @Produce json
// @Param payload body service.CreateChatRequest true "Chat payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /chats [post]
func (h *ChatHandler) Create(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid chat payload"))
		return
	}

	chat, created, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !created {
		response.JSON(c, http.StatusConflict, chat, nil)
		return
	}

	response.Created(c, chat)
}

// List godoc
// @Summary List chats
// @Description List chats the authenticated user is a member of
// @Tags Chats
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /chats [get]
func (h *ChatHandler) List(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	chats, err := h.service.ListForUser(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, chats, nil)
}

// Messages godoc
// @Summary List chat messages
// @Description List messages in a chat, newest first, optionally before a timestamp
// @Tags Chats
// @Produce json
// @Param id path string true "Chat ID"
// @Param before query string false "RFC3339 timestamp window anchor"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/messages [get]
func (h *ChatHandler) Messages(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "before must be an RFC3339 timestamp"))
			return
		}
		before = parsed
	}

	messages, err := h.service.Messages(c.Request.Context(), c.Param("id"), before, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, messages, nil)
}

// Send godoc
// @Summary Send chat message
// @Description Append a message to a chat the caller is a member of
// @Tags Chats
// @Accept json
// @Produce json
// @Param id path string true "Chat ID"
// @Param payload body service.SendMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/messages [post]
func (h *ChatHandler) Send(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}

	message, err := h.service.Send(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, message)
}
