package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseURLEnv names the variable that enables PostgreSQL-backed tests.
const DatabaseURLEnv = "CHART_STUDIO_TEST_DATABASE_URL"

// DatabasePool connects to the test database, or skips the test when
// DatabaseURLEnv is unset. The pool is closed when the test ends.
func DatabasePool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv(DatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set", DatabaseURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("failed to ping database: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}
