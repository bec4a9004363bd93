package cache

import (
	"context"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
)

// MemoryStore is the in-process fallback backend. It holds entries past their
// logical expiry until the physical deadline so stale reads stay possible when
// the primary store is down.
type MemoryStore struct {
	ctx        context.Context
	logger     types.Logger
	config     *types.MemoryCacheConfig
	entries    map[string]*memoryEntry
	shutdownCh chan struct{}
	mu         sync.RWMutex
	running    int32
}

type memoryEntry struct {
	entry    *types.CacheEntry
	evictAt  time.Time
	storedAt time.Time
}

func NewMemoryStore(ctx context.Context, logger types.Logger, config *types.MemoryCacheConfig) *MemoryStore {
	if config == nil {
		config = &types.MemoryCacheConfig{}
	}

	return &MemoryStore{
		ctx:        ctx,
		logger:     logger,
		config:     config,
		entries:    make(map[string]*memoryEntry),
		shutdownCh: make(chan struct{}),
	}
}

func (m *MemoryStore) Name() string {
	return "memory"
}

func (m *MemoryStore) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	if m.config.SweepInterval > 0 {
		go m.sweepLoop()
	}

	return nil
}

func (m *MemoryStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	close(m.shutdownCh)

	m.mu.Lock()
	m.entries = make(map[string]*memoryEntry)
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	if key == "" {
		return nil, types.ErrCacheKeyEmpty
	}

	m.mu.RLock()
	stored, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists {
		return nil, types.ErrCacheEntryNotFound
	}

	if !stored.evictAt.IsZero() && time.Now().After(stored.evictAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, types.ErrCacheEntryNotFound
	}

	return stored.entry, nil
}

func (m *MemoryStore) Set(ctx context.Context, entry *types.CacheEntry, retention time.Duration) error {
	if entry == nil || entry.Key == "" {
		return types.ErrCacheKeyEmpty
	}

	now := time.Now()
	var evictAt time.Time
	if entry.TTL > 0 {
		evictAt = now.Add(entry.TTL + retention)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxEntries > 0 && len(m.entries) >= m.config.MaxEntries {
		if _, exists := m.entries[entry.Key]; !exists {
			m.evictOldestLocked()
		}
	}

	m.entries[entry.Key] = &memoryEntry{
		entry:    entry,
		evictAt:  evictAt,
		storedAt: now,
	}

	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, types.ErrCacheKeyEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key := range m.entries {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return deleted, types.WrapError(err, "invalid cache key pattern")
		}
		if matched {
			delete(m.entries, key)
			deleted++
		}
	}

	return deleted, nil
}

// Len reports the current entry count including physically retained stale
// entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Capacity returns the configured entry ceiling, 0 when unbounded.
func (m *MemoryStore) Capacity() int {
	return m.config.MaxEntries
}

// Sweep removes entries past their physical deadline and returns how many were
// dropped.
func (m *MemoryStore) Sweep() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, stored := range m.entries {
		if !stored.evictAt.IsZero() && now.After(stored.evictAt) {
			delete(m.entries, key)
			removed++
		}
	}

	return removed
}

func (m *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := m.Sweep(); removed > 0 {
				m.logger.Debug("swept expired cache entries", zap.Int("removed", removed))
			}
		case <-m.shutdownCh:
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// evictOldestLocked drops the entry with the oldest store time. Eviction is by
// insertion age, not access recency.
func (m *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time

	for key, stored := range m.entries {
		if oldestKey == "" || stored.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = stored.storedAt
		}
	}

	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

// Keys returns all current keys sorted, primarily for diagnostics and tests.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
