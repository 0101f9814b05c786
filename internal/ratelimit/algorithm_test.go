package ratelimit

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStepBucket_StartsFullAndDrains(t *testing.T) {
	cfg := Config{Kind: TokenBucket, Rate: 30, Period: time.Minute, Capacity: 5}
	var st State
	now := int64(1_000_000)

	for i := 0; i < 5; i++ {
		next, d := step(cfg, st, now, 1)
		require.True(t, d.Allowed, "call %d", i+1)
		next.Version = st.Version + 1
		st = next
	}
	require.InDelta(t, 0, st.Tokens, 1e-9)

	_, d := step(cfg, st, now, 1)
	require.False(t, d.Allowed)
	require.Equal(t, 2000*time.Millisecond, d.RetryAfter)
}

func TestStepBucket_RefillsLazily(t *testing.T) {
	cfg := Config{Kind: TokenBucket, Rate: 30, Period: time.Minute, Capacity: 5}
	st := State{Kind: TokenBucket, Tokens: 0, LastRefillMs: 0, Version: 3}

	_, d := step(cfg, st, 1999, 1)
	require.False(t, d.Allowed)
	require.Equal(t, time.Millisecond, d.RetryAfter)

	next, d := step(cfg, st, 2000, 1)
	require.True(t, d.Allowed)
	require.InDelta(t, 0, next.Tokens, 1e-9)
	require.Equal(t, int64(2000), next.LastRefillMs)

	// refill never exceeds capacity
	next, d = step(cfg, st, int64(time.Hour/time.Millisecond), 1)
	require.True(t, d.Allowed)
	require.InDelta(t, 4, next.Tokens, 1e-9)
}

func TestStepBucket_PartialDeficitRetry(t *testing.T) {
	cfg := Config{Kind: TokenBucket, Rate: 10, Period: time.Second, Capacity: 3}
	st := State{Kind: TokenBucket, Tokens: 0.5, LastRefillMs: 100, Version: 1}

	_, d := step(cfg, st, 100, 2)
	require.False(t, d.Allowed)
	// 1.5 tokens at 10/s
	require.Equal(t, 150*time.Millisecond, d.RetryAfter)
}

func TestStepBucket_TokensStayInRange(t *testing.T) {
	cfg := Config{Kind: TokenBucket, Rate: 7, Period: 3 * time.Second, Capacity: 4}
	rng := rand.New(rand.NewSource(42))

	var st State
	now := int64(0)
	granted := 0
	for i := 0; i < 5000; i++ {
		now += int64(rng.Intn(400))
		cost := 1 + rng.Intn(cfg.Capacity)
		next, d := step(cfg, st, now, cost)
		if d.Allowed {
			granted += cost
			next.Version = st.Version + 1
			st = next
		} else {
			require.Positive(t, d.RetryAfter)
		}
		require.GreaterOrEqual(t, st.Tokens, 0.0)
		require.LessOrEqual(t, st.Tokens, float64(cfg.Capacity))
	}

	limit := float64(cfg.Capacity) + float64(now)*float64(cfg.Rate)/float64(cfg.Period.Milliseconds())
	require.LessOrEqual(t, float64(granted), limit)
}

func TestStepWindow_CapsAndRolls(t *testing.T) {
	cfg := Config{Kind: FixedWindow, Rate: 5, Period: time.Hour}
	periodMs := int64(time.Hour / time.Millisecond)
	start := int64(10_000)

	var st State
	for i := 0; i < 5; i++ {
		next, d := step(cfg, st, start+int64(i), 1)
		require.True(t, d.Allowed)
		next.Version = st.Version + 1
		st = next
	}
	require.Equal(t, start, st.WindowStartMs)
	require.Equal(t, 5, st.Count)

	_, d := step(cfg, st, start+1000, 1)
	require.False(t, d.Allowed)
	require.Equal(t, time.Duration(periodMs-1000)*time.Millisecond, d.RetryAfter)

	// exact boundary belongs to the next window
	next, d := step(cfg, st, start+periodMs, 1)
	require.True(t, d.Allowed)
	require.Equal(t, start+periodMs, next.WindowStartMs)
	require.Equal(t, 1, next.Count)

	// windows stay aligned to the first-seen time
	next, d = step(cfg, st, start+3*periodMs+42, 1)
	require.True(t, d.Allowed)
	require.Equal(t, start+3*periodMs, next.WindowStartMs)
}

func TestStepWindow_CapacityOverridesRate(t *testing.T) {
	cfg := Config{Kind: FixedWindow, Rate: 10, Period: time.Minute, Capacity: 2}
	st := State{Kind: FixedWindow, WindowStartMs: 0, Count: 2, Version: 2}

	_, d := step(cfg, st, 5, 1)
	require.False(t, d.Allowed)
}

func TestStepWindow_NeverExceedsLimit(t *testing.T) {
	cfg := Config{Kind: FixedWindow, Rate: 3, Period: time.Second}
	rng := rand.New(rand.NewSource(7))

	var st State
	now := int64(0)
	perWindow := map[int64]int{}
	for i := 0; i < 2000; i++ {
		now += int64(rng.Intn(150))
		next, d := step(cfg, st, now, 1)
		if d.Allowed {
			next.Version = st.Version + 1
			st = next
			perWindow[st.WindowStartMs]++
		}
	}
	for start, n := range perWindow {
		require.LessOrEqual(t, n, 3, "window %d", start)
	}
}

func TestStep_KindChangeResetsState(t *testing.T) {
	cfg := Config{Kind: TokenBucket, Rate: 1, Period: time.Minute, Capacity: 2}
	st := State{Kind: FixedWindow, WindowStartMs: 0, Count: 99, Version: 4}

	next, d := step(cfg, st, 10, 1)
	require.True(t, d.Allowed)
	require.Equal(t, TokenBucket, next.Kind)
	require.InDelta(t, 1, next.Tokens, 1e-9)
	require.Equal(t, uint64(4), next.Version)
}

func TestConfig_Retention(t *testing.T) {
	defaults := DefaultConfigs()
	require.Equal(t, time.Hour, defaults[Signup].Retention())
	require.Equal(t, time.Minute, defaults[CreateTask].Retention())

	// A deep bucket that refills slowly needs longer than one period
	slow := Config{Kind: TokenBucket, Rate: 1, Period: time.Minute, Capacity: 10}
	require.Equal(t, 10*time.Minute, slow.Retention())

	// After retention an idle key is back to a full bucket, the same as a fresh one
	var st State
	now := int64(1_000_000)
	for i := 0; i < 10; i++ {
		next, d := step(slow, st, now, 1)
		require.True(t, d.Allowed)
		next.Version = st.Version + 1
		st = next
	}
	retentionMs := slow.Retention().Milliseconds()
	_, d := step(slow, st, now+retentionMs-1, 10)
	require.False(t, d.Allowed)
	_, d = step(slow, st, now+retentionMs, 10)
	require.True(t, d.Allowed)
}
