package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/gridironlabs/gridfeed/types"
)

// MemoryStore is the per-instance fallback counting store. Limits drift
// across instances when it is in use, which is accepted degraded behavior.
type MemoryStore struct {
	windows map[string]*windowCounter
	events  map[string][]time.Time
	buckets map[string]*types.BucketState
	mu      sync.Mutex
}

type windowCounter struct {
	count    int64
	expireAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*windowCounter),
		events:  make(map[string][]time.Time),
		buckets: make(map[string]*types.BucketState),
	}
}

func (m *MemoryStore) IncrWindow(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	counter, exists := m.windows[key]
	if !exists || now.After(counter.expireAt) {
		counter = &windowCounter{expireAt: now.Add(expiry)}
		m.windows[key] = counter
	}

	counter.count++
	return counter.count, nil
}

func (m *MemoryStore) SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.pruneLocked(key, now, window)
	if len(kept) == 0 {
		return 0, time.Time{}, nil
	}
	return int64(len(kept)), kept[0], nil
}

func (m *MemoryStore) SlidingAdd(ctx context.Context, key string, now time.Time, window time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[key] = append(m.pruneLocked(key, now, window), now)
	return nil
}

func (m *MemoryStore) GetBucket(ctx context.Context, key string) (*types.BucketState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.buckets[key]
	if !exists {
		return nil, nil
	}

	copied := *state
	return &copied, nil
}

func (m *MemoryStore) SetBucket(ctx context.Context, key string, state *types.BucketState, expiry time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *state
	m.buckets[key] = &copied
	return nil
}

// pruneLocked drops timestamps older than the window and returns the
// remaining ones, oldest first.
func (m *MemoryStore) pruneLocked(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	events := m.events[key]

	start := 0
	for start < len(events) && events[start].Before(cutoff) {
		start++
	}

	kept := events[start:]
	m.events[key] = kept
	return kept
}
