package ratelimit

import (
	"math"
	"time"
)

// Decision is the outcome of a consume attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterMs is RetryAfter in whole milliseconds.
func (d Decision) RetryAfterMs() int64 {
	return d.RetryAfter.Milliseconds()
}

// step applies one consume of cost at nowMs to st. A denial returns the
// input state unchanged so callers can skip the write.
func step(cfg Config, st State, nowMs int64, cost int) (State, Decision) {
	if st.Version == 0 || st.Kind != cfg.Kind {
		st = State{Kind: cfg.Kind, Version: st.Version}
		if cfg.Kind == TokenBucket {
			st.Tokens = float64(cfg.Capacity)
			st.LastRefillMs = nowMs
		} else {
			st.WindowStartMs = nowMs
		}
	}
	if cfg.Kind == TokenBucket {
		return stepBucket(cfg, st, nowMs, cost)
	}
	return stepWindow(cfg, st, nowMs, cost)
}

func stepBucket(cfg Config, st State, nowMs int64, cost int) (State, Decision) {
	periodMs := float64(cfg.Period.Milliseconds())
	capacity := float64(cfg.Capacity)

	if elapsed := nowMs - st.LastRefillMs; elapsed > 0 {
		st.Tokens = math.Min(capacity, st.Tokens+float64(elapsed)*float64(cfg.Rate)/periodMs)
		st.LastRefillMs = nowMs
	}

	need := float64(cost)
	if st.Tokens >= need {
		st.Tokens -= need
		return st, Decision{Allowed: true}
	}

	waitMs := math.Ceil((need-st.Tokens)*periodMs/float64(cfg.Rate) - 1e-9)
	if waitMs < 1 {
		waitMs = 1
	}
	return st, Decision{RetryAfter: time.Duration(waitMs) * time.Millisecond}
}

func stepWindow(cfg Config, st State, nowMs int64, cost int) (State, Decision) {
	periodMs := cfg.Period.Milliseconds()

	if nowMs >= st.WindowStartMs+periodMs {
		elapsed := nowMs - st.WindowStartMs
		st.WindowStartMs += (elapsed / periodMs) * periodMs
		st.Count = 0
	}

	if st.Count+cost <= cfg.Limit() {
		st.Count += cost
		return st, Decision{Allowed: true}
	}

	waitMs := st.WindowStartMs + periodMs - nowMs
	if waitMs < 1 {
		waitMs = 1
	}
	return st, Decision{RetryAfter: time.Duration(waitMs) * time.Millisecond}
}
