// Package history keeps the bounded, persisted log of the edit conversation.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
	"github.com/bizmatters/agent-builder/chart-studio/pkg/logger"
)

// DefaultCapacity is the number of messages kept when none is configured.
const DefaultCapacity = 100

// Buffer is a FIFO log of chat messages capped at a fixed capacity. Every
// change writes the whole buffer through its PersistenceStore while the
// buffer is locked, so stored snapshots never go backwards. Write failures
// are logged and never surface to the caller.
type Buffer struct {
	mu       sync.Mutex
	msgs     []models.ChatMessage
	capacity int
	key      string
	store    PersistenceStore
	now      func() time.Time

	session string
	seq     uint64

	rehydrate sync.Once
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithCapacity sets the maximum number of messages kept. Values below one
// are ignored.
func WithCapacity(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithKey sets the persistence key.
func WithKey(key string) Option {
	return func(b *Buffer) {
		if key != "" {
			b.key = key
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) { b.now = now }
}

// NewBuffer returns an empty buffer backed by store. A nil store keeps the
// history in memory only.
func NewBuffer(store PersistenceStore, opts ...Option) *Buffer {
	if store == nil {
		store = NewMemoryStore()
	}
	b := &Buffer{
		capacity: DefaultCapacity,
		key:      DefaultKey,
		store:    store,
		now:      time.Now,
		session:  uuid.NewString()[:8],
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append stamps msg with a session-unique id and the current time, adds it,
// evicts the oldest messages beyond capacity and persists the buffer. It
// returns the stored message.
func (b *Buffer) Append(ctx context.Context, msg models.ChatMessage) models.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	msg.ID = fmt.Sprintf("%s-%06d", b.session, b.seq)
	msg.CreatedAt = b.now().UTC()

	b.msgs = append(b.msgs, msg)
	if over := len(b.msgs) - b.capacity; over > 0 {
		b.msgs = append([]models.ChatMessage(nil), b.msgs[over:]...)
	}

	b.persistLocked(ctx)
	return msg
}

// Messages returns a copy of the buffer, oldest first.
func (b *Buffer) Messages() []models.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// Capacity returns the maximum number of buffered messages.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Clear empties the buffer and persists the empty history.
func (b *Buffer) Clear(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.msgs = nil
	b.persistLocked(ctx)
}

// Rehydrate loads the stored history. Only the first call has any effect.
// Missing or unreadable data leaves the buffer empty; a stored history
// longer than the capacity keeps only its newest messages.
func (b *Buffer) Rehydrate(ctx context.Context) {
	b.rehydrate.Do(func() {
		stored, err := b.store.Load(ctx, b.key)
		if err != nil {
			logger.WithFields(logrus.Fields{"key": b.key, "error": err}).
				Warn("Discarding unreadable chat history")
			return
		}

		valid := stored[:0]
		for _, m := range stored {
			switch m.Role {
			case models.RoleUser, models.RoleAssistant, models.RoleError:
				valid = append(valid, m)
			}
		}
		if over := len(valid) - b.capacity; over > 0 {
			valid = valid[over:]
		}

		b.mu.Lock()
		// messages appended before rehydration stay newest
		b.msgs = append(append([]models.ChatMessage(nil), valid...), b.msgs...)
		if over := len(b.msgs) - b.capacity; over > 0 {
			b.msgs = b.msgs[over:]
		}
		b.mu.Unlock()

		logger.WithFields(logrus.Fields{"key": b.key, "messages": len(valid)}).
			Info("Chat history rehydrated")
	})
}

func (b *Buffer) snapshotLocked() []models.ChatMessage {
	out := make([]models.ChatMessage, len(b.msgs))
	copy(out, b.msgs)
	return out
}

func (b *Buffer) persistLocked(ctx context.Context) {
	if err := b.store.Save(ctx, b.key, b.snapshotLocked()); err != nil {
		logger.WithFields(logrus.Fields{"key": b.key, "error": err}).
			Error("Failed to persist chat history")
	}
}
