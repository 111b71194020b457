package history

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

func sampleHistory() []models.ChatMessage {
	conf := 0.9
	count := 1
	return []models.ChatMessage{
		{ID: "s-000001", Role: models.RoleUser, Content: "rotate the x labels"},
		{ID: "s-000002", Role: models.RoleAssistant, Content: "Rotated labels", Confidence: &conf, PatchCount: &count},
	}
}

func exerciseStore(t *testing.T, store PersistenceStore) {
	t.Helper()
	ctx := context.Background()

	missing, err := store.Load(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.Save(ctx, DefaultKey, sampleHistory()))
	got, err := store.Load(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, sampleHistory(), got)

	require.NoError(t, store.Save(ctx, DefaultKey, sampleHistory()[:1]))
	got, err = store.Load(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFileStore_KeyCannotEscapeDir(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.NotContains(t, strings.TrimPrefix(store.path("../../etc/passwd"), store.dir), "..")
}

func TestBadgerStore(t *testing.T) {
	store, err := OpenBadgerStore(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := OpenBadgerStore(BadgerConfig{})
	assert.Error(t, err)
}

// fakeConn stands in for a pgx pool with a single-table key/value map.
type fakeConn struct {
	rows    map[string][]byte
	execErr error
}

type fakeRow struct {
	raw []byte
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.raw
	return nil
}

func (f *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	if strings.Contains(sql, "INSERT INTO chat_histories") {
		f.rows[args[0].(string)] = args[1].([]byte)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeConn) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	raw, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{raw: raw}
}

func TestPostgresStore(t *testing.T) {
	conn := &fakeConn{rows: map[string][]byte{}}
	store := NewPostgresStore(conn)
	require.NoError(t, store.EnsureSchema(context.Background()))

	exerciseStore(t, store)

	var decoded []models.ChatMessage
	require.NoError(t, json.Unmarshal(conn.rows[DefaultKey], &decoded))
	assert.Len(t, decoded, 1)
}

func TestPostgresStore_Errors(t *testing.T) {
	conn := &fakeConn{rows: map[string][]byte{"bad": []byte("nope")}}
	store := NewPostgresStore(conn)

	_, err := store.Load(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidData)

	conn.execErr = errors.New("connection reset")
	assert.Error(t, store.Save(context.Background(), "k", sampleHistory()))
}
