package models

import (
	"time"

	"github.com/jackc/pgtype"
)

// TurnKind identifies who authored a chat turn.
type TurnKind string

const (
	TurnKindUser TurnKind = "user"
	TurnKindBot  TurnKind = "bot"
)

// ChatConversation anchors the turn log for one user identifier. Appends lock this row so
// that turns for the same user are written one transaction at a time.
type ChatConversation struct {
	UserID    string    `json:"user_id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatTurn is one user or bot message. Turns are never updated once written.
type ChatTurn struct {
	ID uint `json:"id" gorm:"primaryKey"`

	// UserID references the owning ChatConversation.
	UserID string `json:"user_id" gorm:"not null;index:idx_chat_turns_user_seq,unique,priority:1"`

	// Seq orders the turns within a conversation, starting at 1.
	Seq int64 `json:"seq" gorm:"not null;index:idx_chat_turns_user_seq,unique,priority:2"`

	Kind     TurnKind `json:"kind" gorm:"type:varchar(8);not null"`
	Content  string   `json:"content" gorm:"type:text;not null"`
	ImageRef *string  `json:"image_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Metadata holds informational details such as the model that produced a bot turn.
	Metadata pgtype.JSONB `json:"metadata,omitempty" gorm:"type:jsonb"`
}
