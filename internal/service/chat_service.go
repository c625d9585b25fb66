package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencampus/thesis-match-api/internal/models"
	appErrors "github.com/opencampus/thesis-match-api/pkg/errors"
)

type chatRepository interface {
	FindByID(ctx context.Context, id string) (*models.ChatDetail, error)
	FindByExactMembers(ctx context.Context, memberIDs []string) (*models.ChatDetail, error)
	ListByMember(ctx context.Context, userID string) ([]models.ChatDetail, error)
	Create(ctx context.Context, chat *models.Chat, memberIDs []string) error
	CreateMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, chatID string, limit int, before time.Time) ([]models.Message, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateChatRequest describes chat creation payload.
type CreateChatRequest struct {
	Members []string `json:"members" validate:"required,min=2,max=2,dive,required"`
	Title   string   `json:"title" validate:"required"`
}

// SendMessageRequest describes a message append.
type SendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

// ChatService provides pairwise conversations between matched students and
// supervisors. Creation is idempotent per member pair: a second create with
// the same two members yields the existing chat, flagged as not newly created.
type ChatService struct {
	repo      chatRepository
	users     userReader
	pageSize  int
	validator *validator.Validate
	logger    *zap.Logger
}

// NewChatService constructs ChatService.
func NewChatService(repo chatRepository, users userReader, pageSize int, validate *validator.Validate, logger *zap.Logger) *ChatService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ChatService{repo: repo, users: users, pageSize: pageSize, validator: validate, logger: logger}
}

// Create opens a pairwise chat. Returns the chat and whether it was newly
// created; an existing chat for the same member pair is returned as-is.
func (s *ChatService) Create(ctx context.Context, req CreateChatRequest, claims *models.JWTClaims) (*models.ChatDetail, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid chat payload")
	}
	if req.Members[0] == req.Members[1] {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "chat members must be distinct")
	}
	if claims == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleAdmin && claims.UserID != req.Members[0] && claims.UserID != req.Members[1] {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "chat creator must be a member")
	}

	members := append([]string(nil), req.Members...)
	sort.Strings(members)

	for _, memberID := range members {
		if _, err := s.users.FindByID(ctx, memberID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false, appErrors.Clone(appErrors.ErrNotFound, "chat member not found: "+memberID)
			}
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve chat member")
		}
	}

	existing, err := s.repo.FindByExactMembers(ctx, members)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up chat")
	}

	chat := &models.Chat{Title: req.Title}
	if err := s.repo.Create(ctx, chat, members); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create chat")
	}

	detail, err := s.repo.FindByID(ctx, chat.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chat")
	}
	return detail, true, nil
}

// ListForUser returns the acting user's chats.
func (s *ChatService) ListForUser(ctx context.Context, claims *models.JWTClaims) ([]models.ChatDetail, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	chats, err := s.repo.ListByMember(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list chats")
	}
	return chats, nil
}

// Messages returns a window of chat history. Only members may read.
func (s *ChatService) Messages(ctx context.Context, chatID string, before time.Time, claims *models.JWTClaims) ([]models.Message, error) {
	chat, err := s.memberChat(ctx, chatID, claims)
	if err != nil {
		return nil, err
	}
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Second)
	}
	messages, err := s.repo.ListMessages(ctx, chat.ID, s.pageSize, before)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, nil
}

// Send appends a message to the chat. Only members may write.
func (s *ChatService) Send(ctx context.Context, chatID string, req SendMessageRequest, claims *models.JWTClaims) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	chat, err := s.memberChat(ctx, chatID, claims)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ChatID:   chat.ID,
		SenderID: claims.UserID,
		Body:     req.Body,
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	return message, nil
}

func (s *ChatService) memberChat(ctx context.Context, chatID string, claims *models.JWTClaims) (*models.ChatDetail, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	chat, err := s.repo.FindByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "chat not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chat")
	}
	if claims.Role != models.RoleAdmin && !chat.HasMember(claims.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a member of this chat")
	}
	return chat, nil
}
