// Package store persists conversations between requests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/minhyannv/function-call-go/pkg/chat"
)

// ErrNotFound is returned when no conversation is stored under an id.
var ErrNotFound = errors.New("conversation not found")

// Store saves and restores conversations by id. Implementations are safe
// for concurrent use.
type Store interface {
	Save(ctx context.Context, conv *chat.Conversation) error
	Load(ctx context.Context, id string) (*chat.Conversation, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// record is the persisted form of a conversation.
type record struct {
	ID        string         `json:"id"`
	Messages  []chat.Message `json:"messages"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func snapshot(conv *chat.Conversation) record {
	return record{ID: conv.ID, Messages: conv.Messages(), UpdatedAt: time.Now().UTC()}
}

func (r record) restore() (*chat.Conversation, error) {
	return chat.Restore(r.ID, r.Messages)
}
