package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounterStore is a process-local CounterStore. Counters shared this
// way do not survive restarts and are not visible to other instances, so it
// is suited to tests and single-node development, not production.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*memoryCounter

	// now is swappable so tests can step time across window boundaries.
	now func() time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

type MemoryCounterOption func(*MemoryCounterStore)

func WithClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries: make(map[string]*memoryCounter),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	if !ent.expiresAt.IsZero() && !ent.expiresAt.After(s.now()) {
		delete(s.entries, key)
		return 0, nil
	}
	return ent.count, nil
}

func (s *MemoryCounterStore) Increment(_ context.Context, key string, ttl time.Duration) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if ok && (ent.expiresAt.IsZero() || ent.expiresAt.After(now)) {
		ent.count++
		if ttl > 0 {
			ent.expiresAt = now.Add(ttl)
		}
		return nil
	}

	ent = &memoryCounter{count: 1}
	if ttl > 0 {
		ent.expiresAt = now.Add(ttl)
	}
	s.entries[key] = ent
	return nil
}

// Len reports the number of live counters, for tests.
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
