// Package database opens the PostgreSQL pool shared by the user and history
// stores.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/bizmatters/agent-builder/chart-studio/pkg/logger"
)

// RetryDelay is the pause between connection attempts.
var RetryDelay = 3 * time.Second

// Connect opens a pool and pings it, retrying while the database comes up.
// attempts below one are treated as one.
func Connect(ctx context.Context, url string, attempts int) (*pgxpool.Pool, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		pool, err := pgxpool.New(ctx, url)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err

		logger.WithFields(logrus.Fields{
			"attempt": i + 1,
			"of":      attempts,
			"error":   err.Error(),
		}).Warn("Waiting for database")

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(RetryDelay):
		}
	}
	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
}
