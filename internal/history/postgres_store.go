package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

// pgxConn is the subset of *pgxpool.Pool used by PostgresStore.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps histories in the chat_histories table as jsonb.
type PostgresStore struct {
	db pgxConn
}

func NewPostgresStore(db pgxConn) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the chat_histories table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_histories (
			key        TEXT PRIMARY KEY,
			messages   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create chat_histories: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, key string) ([]models.ChatMessage, error) {
	var raw []byte
	err := p.db.QueryRow(ctx, `SELECT messages FROM chat_histories WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history %s: %w", key, err)
	}

	var msgs []models.ChatMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return msgs, nil
}

func (p *PostgresStore) Save(ctx context.Context, key string, msgs []models.ChatMessage) error {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO chat_histories (key, messages, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET messages = EXCLUDED.messages, updated_at = NOW()
	`, key, raw)
	if err != nil {
		return fmt.Errorf("failed to save history %s: %w", key, err)
	}
	return nil
}
