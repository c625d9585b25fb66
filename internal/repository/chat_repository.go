package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/opencampus/thesis-match-api/internal/models"
)

// ChatRepository handles persistence of chats and messages.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository constructs the repository.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

const chatDetailQuery = `SELECT c.id, c.title, c.last_message_id, c.last_message_at, c.created_at,
	COALESCE(ARRAY(SELECT cm.user_id FROM chat_members cm WHERE cm.chat_id = c.id ORDER BY cm.user_id), '{}') AS member_ids
FROM chats c`

// FindByID returns a chat with its member list.
func (r *ChatRepository) FindByID(ctx context.Context, id string) (*models.ChatDetail, error) {
	query := chatDetailQuery + ` WHERE c.id = $1 LIMIT 1`
	var detail models.ChatDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find chat by id: %w", err)
	}
	return &detail, nil
}

// FindByExactMembers returns the chat whose member set is exactly the given
// users, or sql.ErrNoRows when no such chat exists. Pairwise chats are unique
// by this lookup.
func (r *ChatRepository) FindByExactMembers(ctx context.Context, memberIDs []string) (*models.ChatDetail, error) {
	query := chatDetailQuery + ` WHERE c.id IN (
	SELECT cm.chat_id FROM chat_members cm
	GROUP BY cm.chat_id
	HAVING COUNT(*) = $1 AND COUNT(*) FILTER (WHERE cm.user_id = ANY($2)) = $1
) LIMIT 1`
	var detail models.ChatDetail
	if err := r.db.GetContext(ctx, &detail, query, len(memberIDs), pq.Array(memberIDs)); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find chat by members: %w", err)
	}
	return &detail, nil
}

// ListByMember returns every chat the user participates in, most recent
// activity first.
func (r *ChatRepository) ListByMember(ctx context.Context, userID string) ([]models.ChatDetail, error) {
	query := chatDetailQuery + ` WHERE c.id IN (SELECT chat_id FROM chat_members WHERE user_id = $1)
ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`
	var details []models.ChatDetail
	if err := r.db.SelectContext(ctx, &details, query, userID); err != nil {
		return nil, fmt.Errorf("list chats by member: %w", err)
	}
	return details, nil
}

// Create persists a chat and its member rows in one transaction.
func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat, memberIDs []string) (err error) {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	chat.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chat transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertChat = `INSERT INTO chats (id, title, created_at) VALUES ($1, $2, $3)`
	if _, err = tx.ExecContext(ctx, insertChat, chat.ID, chat.Title, chat.CreatedAt); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	const insertMember = `INSERT INTO chat_members (chat_id, user_id, created_at) VALUES ($1, $2, $3)`
	for _, memberID := range memberIDs {
		if _, err = tx.ExecContext(ctx, insertMember, chat.ID, memberID, chat.CreatedAt); err != nil {
			return fmt.Errorf("insert chat member: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit chat transaction: %w", err)
	}
	return nil
}

// CreateMessage appends a message and rolls the chat's last-message reference
// forward in the same transaction.
func (r *ChatRepository) CreateMessage(ctx context.Context, message *models.Message) (err error) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertMessage = `INSERT INTO messages (id, chat_id, sender_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, insertMessage, message.ID, message.ChatID, message.SenderID, message.Body, message.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	const touchChat = `UPDATE chats SET last_message_id = $2, last_message_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, touchChat, message.ChatID, message.ID, message.CreatedAt); err != nil {
		return fmt.Errorf("update chat last message: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit message transaction: %w", err)
	}
	return nil
}

// ListMessages returns messages for a chat in chronological order, newest
// window last.
func (r *ChatRepository) ListMessages(ctx context.Context, chatID string, limit int, before time.Time) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, chat_id, sender_id, body, created_at FROM (
	SELECT id, chat_id, sender_id, body, created_at FROM messages
	WHERE chat_id = $1 AND created_at < $2
	ORDER BY created_at DESC LIMIT $3
) recent ORDER BY created_at ASC`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, chatID, before, limit); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
