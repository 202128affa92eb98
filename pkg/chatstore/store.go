// Package chatstore persists the per-user, append-only log of chat turns.
package chatstore

import (
	"context"
	"fmt"
	"time"

	"github.com/sentichat/sentichat/pkg/db/models"
)

const (
	KindUser = models.TurnKindUser
	KindBot  = models.TurnKindBot
)

// Turn is one message in a conversation. ImageRef is only ever set on user turns.
type Turn struct {
	Kind      models.TurnKind        `json:"kind"`
	Text      string                 `json:"text"`
	ImageRef  string                 `json:"imageRef,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func UserTurn(text, imageRef string, at time.Time) Turn {
	return Turn{Kind: KindUser, Text: text, ImageRef: imageRef, CreatedAt: at}
}

func BotTurn(text string, at time.Time) Turn {
	return Turn{Kind: KindBot, Text: text, CreatedAt: at}
}

// Store is the durable conversation log.
//
// Append adds turns to the end of the user's sequence, creating the conversation on first
// use. Turns passed to a single Append are written atomically and contiguously, and appends
// for the same user are serialized. Fetch returns an empty, non-nil slice for unknown users.
// Clear is idempotent.
type Store interface {
	Append(ctx context.Context, userID string, turns ...Turn) error
	Fetch(ctx context.Context, userID string) ([]Turn, error)
	Clear(ctx context.Context, userID string) error
	Ping(ctx context.Context) error
}

// StorageError reports a failure of the storage backend. The operation may be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("chat storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
