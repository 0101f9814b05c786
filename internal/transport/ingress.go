package transport

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IngressLimiter throttles raw request rate per client address with one
// x/time/rate token bucket per key.
type IngressLimiter struct {
	mu      sync.Mutex
	entries map[string]*ingressEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type ingressEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// IngressOption configures an IngressLimiter.
type IngressOption func(*IngressLimiter)

// WithIdleTTL sets how long an unused key is kept.
func WithIdleTTL(d time.Duration) IngressOption {
	return func(l *IngressLimiter) { l.idleTTL = d }
}

// WithIngressClock overrides the time source.
func WithIngressClock(now func() time.Time) IngressOption {
	return func(l *IngressLimiter) { l.now = now }
}

// NewIngressLimiter allows rps requests per second per key with the given burst.
func NewIngressLimiter(rps float64, burst int, opts ...IngressOption) *IngressLimiter {
	if burst < 1 {
		burst = int(math.Ceil(rps))
	}
	l := &IngressLimiter{
		entries: make(map[string]*ingressEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *IngressLimiter) limiter(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ent, ok := l.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(l.rps, l.burst)
	l.entries[key] = &ingressEntry{lim: lim, lastSeen: now}
	return lim
}

// Reserve takes one token for key. When none is available it returns false
// and how long until one is.
func (l *IngressLimiter) Reserve(key string) (bool, time.Duration) {
	now := l.now()
	res := l.limiter(key, now).ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

// Len reports how many keys are tracked.
func (l *IngressLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cleanup drops keys idle longer than the idle TTL.
func (l *IngressLimiter) Cleanup() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (l *IngressLimiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// Middleware rejects requests over the per-address budget with 429.
func (l *IngressLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := l.Reserve(clientAddress(r)); !ok {
			writeRateLimited(w, "too many requests", wait)
			return
		}
		next.ServeHTTP(w, r)
	})
}
