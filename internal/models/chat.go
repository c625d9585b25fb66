package models

import (
	"time"

	"github.com/lib/pq"
)

// Chat is a conversation between two or more users. Two-member chats are
// deduplicated on creation by their exact member set.
type Chat struct {
	ID            string     `db:"id" json:"id"`
	Title         string     `db:"title" json:"title"`
	LastMessageID *string    `db:"last_message_id" json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// ChatDetail pairs a chat row with its member list.
type ChatDetail struct {
	Chat
	MemberIDs pq.StringArray `db:"member_ids" json:"members"`
}

// HasMember reports whether the user participates in the chat.
func (d *ChatDetail) HasMember(userID string) bool {
	for _, id := range d.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is a single chat entry. Clients poll for new messages.
type Message struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	SenderID  string    `db:"sender_id" json:"sender_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
