package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpggio/taskflow/internal/ratelimit"
)

// RateLimitStore implements ratelimit.StateStore on the rate_limits table.
// Compare-and-set is a single conditional statement, so concurrent
// processes sharing the database file serialize on the row.
type RateLimitStore struct {
	db  *DB
	now func() time.Time
}

// NewRateLimitStore creates a new RateLimitStore
func NewRateLimitStore(db *DB) *RateLimitStore {
	return &RateLimitStore{db: db, now: time.Now}
}

// Get implements ratelimit.StateStore
func (s *RateLimitStore) Get(ctx context.Context, key string) (ratelimit.State, error) {
	query := `
		SELECT kind, tokens, last_refill_ms, window_start_ms, count, version
		FROM rate_limits WHERE key = ?
	`
	var st ratelimit.State
	var version int64
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&st.Kind,
		&st.Tokens,
		&st.LastRefillMs,
		&st.WindowStartMs,
		&st.Count,
		&version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ratelimit.State{}, nil
	}
	if err != nil {
		return ratelimit.State{}, fmt.Errorf("failed to get rate limit state: %w", err)
	}
	st.Version = uint64(version)
	return st, nil
}

// CompareAndSet implements ratelimit.StateStore
func (s *RateLimitStore) CompareAndSet(ctx context.Context, key string, expected uint64, next ratelimit.State) (bool, error) {
	var (
		result sql.Result
		err    error
	)
	updatedAt := toMillis(s.now())

	if expected == 0 {
		query := `
			INSERT INTO rate_limits (key, kind, tokens, last_refill_ms, window_start_ms, count, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO NOTHING
		`
		result, err = s.db.ExecContext(ctx, query,
			key, next.Kind, next.Tokens, next.LastRefillMs, next.WindowStartMs, next.Count, int64(next.Version), updatedAt)
	} else {
		query := `
			UPDATE rate_limits
			SET kind = ?, tokens = ?, last_refill_ms = ?, window_start_ms = ?, count = ?, version = ?, updated_at = ?
			WHERE key = ? AND version = ?
		`
		result, err = s.db.ExecContext(ctx, query,
			next.Kind, next.Tokens, next.LastRefillMs, next.WindowStartMs, next.Count, int64(next.Version), updatedAt,
			key, int64(expected))
	}
	if err != nil {
		return false, fmt.Errorf("failed to write rate limit state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// Sweep deletes state untouched since before and returns how many rows went
func (s *RateLimitStore) Sweep(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE updated_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep rate limit state: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}
