package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("rate_limits")

// BoltStore keeps limiter state in a single bbolt file. bbolt serializes
// write transactions, so CompareAndSet reads and writes under one lock.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

type boltRecord struct {
	State     State `json:"state"`
	UpdatedMs int64 `json:"updated_ms"`
}

// BoltOption configures a BoltStore.
type BoltOption func(*BoltStore)

// WithBoltClock overrides the clock used to stamp writes.
func WithBoltClock(now func() time.Time) BoltOption {
	return func(s *BoltStore) { s.now = now }
}

// OpenBoltStore opens or creates the state file at path.
func OpenBoltStore(path string, opts ...BoltOption) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}
	s := &BoltStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get implements StateStore.
func (s *BoltStore) Get(_ context.Context, key string) (State, error) {
	var st State
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := loadRecord(tx.Bucket(boltBucket), key)
		if err != nil {
			return err
		}
		st = rec.State
		return nil
	})
	if err != nil {
		return State{}, fmt.Errorf("read rate limit state: %w", err)
	}
	return st, nil
}

// CompareAndSet implements StateStore.
func (s *BoltStore) CompareAndSet(_ context.Context, key string, expected uint64, next State) (bool, error) {
	swapped := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		rec, err := loadRecord(b, key)
		if err != nil {
			return err
		}
		if rec.State.Version != expected {
			return nil
		}
		data, err := json.Marshal(boltRecord{State: next, UpdatedMs: s.now().UnixMilli()})
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), data); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("write rate limit state: %w", err)
	}
	return swapped, nil
}

// Sweep removes keys last written before cutoff and returns how many were removed.
func (s *BoltStore) Sweep(cutoff time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if json.Unmarshal(v, &rec) != nil || rec.UpdatedMs < cutoff.UnixMilli() {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep rate limit state: %w", err)
	}
	return removed, nil
}

func loadRecord(b *bolt.Bucket, key string) (boltRecord, error) {
	var rec boltRecord
	v := b.Get([]byte(key))
	if v == nil {
		return rec, nil
	}
	if err := json.Unmarshal(v, &rec); err != nil {
		return boltRecord{}, fmt.Errorf("decode state for %s: %w", key, err)
	}
	return rec, nil
}
