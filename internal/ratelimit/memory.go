package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps limiter state in process. Each key has its own lock,
// so contention on one key never blocks another.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	mu       sync.Mutex
	state    State
	lastSeen time.Time
	removed  bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the clock used for idle tracking.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) lookup(key string, create bool) *memoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok && create {
		ent = &memoryEntry{}
		s.entries[key] = ent
	}
	return ent
}

// Get implements StateStore.
func (s *MemoryStore) Get(_ context.Context, key string) (State, error) {
	ent := s.lookup(key, false)
	if ent == nil {
		return State{}, nil
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.removed {
		return State{}, nil
	}
	ent.lastSeen = s.now()
	return ent.state, nil
}

// CompareAndSet implements StateStore.
func (s *MemoryStore) CompareAndSet(_ context.Context, key string, expected uint64, next State) (bool, error) {
	ent := s.lookup(key, true)

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.removed || ent.state.Version != expected {
		return false, nil
	}
	ent.state = next
	ent.lastSeen = s.now()
	return true, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops keys not touched within idleTTL and returns how many were removed.
func (s *MemoryStore) Sweep(idleTTL time.Duration) int {
	cutoff := s.now().Add(-idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.entries {
		ent.mu.Lock()
		if ent.lastSeen.Before(cutoff) {
			ent.removed = true
			delete(s.entries, k)
			removed++
		}
		ent.mu.Unlock()
	}
	return removed
}

// StartJanitor sweeps idle keys every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, every, idleTTL time.Duration) {
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
				s.Sweep(idleTTL)
			}
		}
	}()
}
