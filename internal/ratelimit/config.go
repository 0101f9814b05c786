package ratelimit

import (
	"fmt"
	"time"
)

// Kind selects the admission algorithm for an operation.
type Kind string

const (
	TokenBucket Kind = "token_bucket"
	FixedWindow Kind = "fixed_window"
)

// Operation names a rate-limited action.
type Operation string

const (
	CreateTask    Operation = "createTask"
	UpdateTask    Operation = "updateTask"
	DeleteTask    Operation = "deleteTask"
	SendMessage   Operation = "sendMessage"
	DeleteMessage Operation = "deleteMessage"
	CreateThread  Operation = "createThread"
	UpdateThread  Operation = "updateThread"
	DeleteThread  Operation = "deleteThread"
	Signup        Operation = "signup"
	Login         Operation = "login"
)

// Config is the limit for one operation.
//
// For a token bucket, Rate tokens are added per Period up to Capacity.
// For a fixed window, at most Capacity (or Rate when Capacity is zero)
// admissions happen per Period.
type Config struct {
	Kind     Kind          `yaml:"kind"`
	Rate     int           `yaml:"rate"`
	Period   time.Duration `yaml:"period"`
	Capacity int           `yaml:"capacity"`
}

// Limit is the most cost a single key may spend at once.
func (c Config) Limit() int {
	if c.Capacity > 0 {
		return c.Capacity
	}
	return c.Rate
}

// Retention is how long a key's state must outlive its last admission
// before dropping it is indistinguishable from keeping it: one window for a
// fixed window, and for a token bucket the longer of one period and the
// time to refill from empty.
func (c Config) Retention() time.Duration {
	if c.Kind != TokenBucket || c.Rate <= 0 {
		return c.Period
	}
	refill := time.Duration(float64(c.Capacity) * float64(c.Period) / float64(c.Rate))
	return max(c.Period, refill)
}

// Validate checks that c describes a usable limit.
func (c Config) Validate() error {
	switch c.Kind {
	case TokenBucket, FixedWindow:
	default:
		return fmt.Errorf("unknown rate limit kind %q", c.Kind)
	}
	if c.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %d", c.Rate)
	}
	if c.Period < time.Millisecond {
		return fmt.Errorf("period must be at least 1ms, got %s", c.Period)
	}
	if c.Kind == TokenBucket && c.Capacity <= 0 {
		return fmt.Errorf("token bucket capacity must be positive, got %d", c.Capacity)
	}
	return nil
}

// DefaultConfigs returns the built-in limits keyed by operation.
func DefaultConfigs() map[Operation]Config {
	return map[Operation]Config{
		CreateTask:    {Kind: TokenBucket, Rate: 30, Period: time.Minute, Capacity: 5},
		UpdateTask:    {Kind: TokenBucket, Rate: 60, Period: time.Minute, Capacity: 10},
		DeleteTask:    {Kind: TokenBucket, Rate: 20, Period: time.Minute, Capacity: 3},
		SendMessage:   {Kind: TokenBucket, Rate: 20, Period: time.Minute, Capacity: 3},
		DeleteMessage: {Kind: TokenBucket, Rate: 20, Period: time.Minute, Capacity: 3},
		CreateThread:  {Kind: TokenBucket, Rate: 10, Period: time.Minute, Capacity: 2},
		UpdateThread:  {Kind: TokenBucket, Rate: 30, Period: time.Minute, Capacity: 5},
		DeleteThread:  {Kind: TokenBucket, Rate: 20, Period: time.Minute, Capacity: 3},
		Signup:        {Kind: FixedWindow, Rate: 5, Period: time.Hour},
		Login:         {Kind: FixedWindow, Rate: 10, Period: time.Hour},
	}
}

// MergeConfigs overlays overrides onto base and validates the result.
func MergeConfigs(base map[Operation]Config, overrides map[string]Config) (map[Operation]Config, error) {
	out := make(map[Operation]Config, len(base)+len(overrides))
	for op, cfg := range base {
		out[op] = cfg
	}
	for name, cfg := range overrides {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("rate limit %s: %w", name, err)
		}
		out[Operation(name)] = cfg
	}
	return out, nil
}
