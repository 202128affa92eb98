package chatstore

import (
	"context"
	"sync"
)

// MemoryStore keeps conversations in process memory. It is used by tests and by
// `serve --storage=memory` for local development.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string][]Turn),
	}
}

func (m *MemoryStore) Append(_ context.Context, userID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range turns {
		m.conversations[userID] = append(m.conversations[userID], copyTurn(t))
	}
	return nil
}

func (m *MemoryStore) Fetch(_ context.Context, userID string) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.conversations[userID]
	turns := make([]Turn, 0, len(stored))
	for _, t := range stored {
		turns = append(turns, copyTurn(t))
	}
	return turns, nil
}

func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, userID)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func copyTurn(t Turn) Turn {
	if t.Metadata != nil {
		md := make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			md[k] = v
		}
		t.Metadata = md
	}
	return t
}
