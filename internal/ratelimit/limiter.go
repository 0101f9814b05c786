package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const defaultMaxAttempts = 100

// ErrRateLimited matches every RateLimitError.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitError is returned by Admit when an operation is denied.
type RateLimitError struct {
	Operation  Operation
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: retry after %dms", e.Operation, e.RetryAfterMs())
}

// RetryAfterMs is the suggested wait in milliseconds.
func (e *RateLimitError) RetryAfterMs() int64 {
	return e.RetryAfter.Milliseconds()
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Limiter admits or denies operations per key using the configured algorithms.
type Limiter struct {
	store       StateStore
	configs     map[Operation]Config
	now         func() time.Time
	logger      *slog.Logger
	metrics     *Metrics
	maxAttempts int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the limiter's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records admissions and rejections on m.
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithMaxAttempts bounds compare-and-set retries per call.
func WithMaxAttempts(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// New creates a Limiter over store. configs is copied.
func New(store StateStore, configs map[Operation]Config, opts ...Option) *Limiter {
	l := &Limiter{
		store:       store,
		configs:     make(map[Operation]Config, len(configs)),
		now:         time.Now,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxAttempts: defaultMaxAttempts,
	}
	for op, cfg := range configs {
		l.configs[op] = cfg
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the limit for op, if one is configured.
func (l *Limiter) Config(op Operation) (Config, bool) {
	cfg, ok := l.configs[op]
	return cfg, ok
}

// Key is the storage key for op and subject.
func Key(op Operation, subject string) string {
	return string(op) + ":" + subject
}

// Consume spends cost units of op for subject. Operations without a
// config are always allowed.
func (l *Limiter) Consume(ctx context.Context, op Operation, subject string, cost int) (Decision, error) {
	cfg, ok := l.configs[op]
	if !ok {
		l.logger.Debug("no rate limit configured", "operation", op)
		return Decision{Allowed: true}, nil
	}
	if cost < 1 || cost > cfg.Limit() {
		return Decision{}, fmt.Errorf("%w: %d for %s (limit %d)", ErrInvalidCost, cost, op, cfg.Limit())
	}

	key := Key(op, subject)
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}

		current, err := l.store.Get(ctx, key)
		if err != nil {
			return Decision{}, fmt.Errorf("reading rate limit state: %w", err)
		}

		next, decision := step(cfg, current, l.now().UnixMilli(), cost)
		if !decision.Allowed {
			l.record(ctx, op, subject, decision)
			return decision, nil
		}

		next.Version = current.Version + 1
		swapped, err := l.store.CompareAndSet(ctx, key, current.Version, next)
		if err != nil {
			return Decision{}, fmt.Errorf("writing rate limit state: %w", err)
		}
		if swapped {
			l.record(ctx, op, subject, decision)
			return decision, nil
		}
	}

	return Decision{}, fmt.Errorf("%w: %s", ErrContention, key)
}

// Admit consumes one unit of op for subject and returns a *RateLimitError
// when denied.
func (l *Limiter) Admit(ctx context.Context, op Operation, subject string) error {
	decision, err := l.Consume(ctx, op, subject, 1)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &RateLimitError{Operation: op, RetryAfter: decision.RetryAfter}
	}
	return nil
}

func (l *Limiter) record(ctx context.Context, op Operation, subject string, d Decision) {
	if l.metrics != nil {
		l.metrics.record(ctx, op, d.Allowed)
	}
	if !d.Allowed {
		l.logger.Info("rate limited", "operation", op, "subject", subject, "retry_after_ms", d.RetryAfterMs())
	}
}
