package ratelimit

import (
	"context"
	"errors"
)

// State is the persisted counter for one key.
// Version 0 means the key has never been written.
type State struct {
	Kind          Kind    `json:"kind"`
	Tokens        float64 `json:"tokens,omitempty"`
	LastRefillMs  int64   `json:"last_refill_ms,omitempty"`
	WindowStartMs int64   `json:"window_start_ms,omitempty"`
	Count         int     `json:"count,omitempty"`
	Version       uint64  `json:"version"`
}

// StateStore persists limiter state with per-key compare-and-set.
type StateStore interface {
	// Get returns the state for key, or a zero State when absent.
	Get(ctx context.Context, key string) (State, error)
	// CompareAndSet writes next only if the stored version equals expected
	// (0 meaning absent). It reports whether the write happened.
	CompareAndSet(ctx context.Context, key string, expected uint64, next State) (bool, error)
}

var (
	// ErrInvalidCost is returned when cost is below 1 or above the limit.
	ErrInvalidCost = errors.New("invalid rate limit cost")
	// ErrContention is returned when a key could not be updated after repeated CAS losses.
	ErrContention = errors.New("rate limit state contention")
)
