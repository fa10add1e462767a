package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/minhyannv/function-call-go/pkg/chat"
)

// Memory keeps conversations in process memory.
type Memory struct {
	mu      sync.RWMutex
	records map[string]record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]record)}
}

// Save stores a snapshot of conv, replacing any previous one.
func (m *Memory) Save(_ context.Context, conv *chat.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation with an id is required")
	}
	rec := snapshot(conv)
	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()
	return nil
}

// Load rebuilds the stored conversation.
func (m *Memory) Load(_ context.Context, id string) (*chat.Conversation, error) {
	m.mu.RLock()
	rec, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return rec.restore()
}

// Delete removes a conversation. Deleting an unknown id is not an error.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	return nil
}

// List returns stored ids in lexical order.
func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}
