package history

import (
	"context"
	"errors"
	"sync"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

// DefaultKey is the storage key of the chat history. The suffix versions
// the stored layout.
const DefaultKey = "chart-studio.chat-history.v1"

// ErrInvalidData is returned when a stored history cannot be decoded.
var ErrInvalidData = errors.New("invalid history data")

// PersistenceStore saves and loads whole histories by key. Load returns
// (nil, nil) when nothing is stored under key.
type PersistenceStore interface {
	Load(ctx context.Context, key string) ([]models.ChatMessage, error)
	Save(ctx context.Context, key string, msgs []models.ChatMessage) error
}

// MemoryStore keeps histories in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]models.ChatMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]models.ChatMessage)}
}

func (m *MemoryStore) Load(_ context.Context, key string) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, msgs []models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]models.ChatMessage, len(msgs))
	copy(stored, msgs)
	m.data[key] = stored
	return nil
}
