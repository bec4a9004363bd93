package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
)

const primaryProbeInterval = 5 * time.Second

// TieredStore layers the shared Redis backend over the in-process fallback.
// Primary connectivity failures degrade reads and writes to the fallback and
// are never surfaced to callers; a passive reconnect restores the primary.
type TieredStore struct {
	ctx       context.Context
	logger    types.Logger
	config    *types.CacheConfig
	retention time.Duration
	primary   *RedisStore
	fallback  *MemoryStore
	monitor   types.CacheMonitor

	primaryDown int32
	lastProbe   int64
	running     int32
}

func NewTieredStore(
	ctx context.Context,
	logger types.Logger,
	config *types.CacheConfig,
	retention time.Duration,
	primary *RedisStore,
	fallback *MemoryStore,
	monitor types.CacheMonitor,
) *TieredStore {
	return &TieredStore{
		ctx:       ctx,
		logger:    logger,
		config:    config,
		retention: retention,
		primary:   primary,
		fallback:  fallback,
		monitor:   monitor,
	}
}

func (t *TieredStore) Start() error {
	if !atomic.CompareAndSwapInt32(&t.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	if err := t.fallback.Start(); err != nil {
		return err
	}

	if t.primary != nil {
		if err := t.primary.Start(); err != nil {
			return err
		}
		if err := t.primary.Ping(t.ctx); err != nil {
			t.markPrimaryDown(err)
		} else {
			t.monitor.RecordPrimaryProbe(true)
		}
	} else {
		atomic.StoreInt32(&t.primaryDown, 1)
	}

	return nil
}

func (t *TieredStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&t.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	if t.primary != nil {
		if err := t.primary.Stop(); err != nil {
			t.logger.Error("failed to stop primary cache store", zap.Error(err))
		}
	}

	return t.fallback.Stop()
}

func (t *TieredStore) IsRunning() bool {
	return atomic.LoadInt32(&t.running) == 1
}

// Get returns a fresh value or reports a miss. Expired entries are deleted
// lazily and count as misses.
func (t *TieredStore) Get(ctx context.Context, key string) (*types.CachedValue, bool) {
	start := time.Now()

	entry := t.read(ctx, key)
	if entry == nil {
		t.monitor.RecordMiss(time.Since(start))
		return nil, false
	}

	now := time.Now()
	if entry.Expired(now) {
		t.evict(ctx, key)
		t.monitor.RecordMiss(time.Since(start))
		return nil, false
	}

	t.monitor.RecordHit(time.Since(start))
	return cachedValue(entry, now, false), true
}

// GetStale returns whatever value is still physically retained for the key,
// flagged stale when past its logical expiry. Used when all sources are down.
func (t *TieredStore) GetStale(ctx context.Context, key string) (*types.CachedValue, bool) {
	entry := t.read(ctx, key)
	if entry == nil {
		return nil, false
	}

	now := time.Now()
	return cachedValue(entry, now, entry.Expired(now)), true
}

// Set writes to both stores when the primary is healthy. The in-process write
// is the success criterion; a primary failure only degrades the tier.
func (t *TieredStore) Set(ctx context.Context, key string, value interface{}, sourceTag string, ttl time.Duration) error {
	start := time.Now()

	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = t.config.DefaultTTL
	}

	now := time.Now()
	entry := &types.CacheEntry{
		Key:       key,
		Value:     value,
		SourceTag: sourceTag,
		TTL:       ttl,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if t.primaryHealthy() {
		if err := t.primary.Set(ctx, entry, t.retention); err != nil {
			t.markPrimaryDown(err)
			t.monitor.RecordError("primary", time.Since(start))
		}
	} else {
		t.tryReconnect(ctx)
	}

	if err := t.fallback.Set(ctx, entry, t.retention); err != nil {
		t.monitor.RecordError("fallback", time.Since(start))
		return err
	}

	t.reportFallbackUtilization()
	return nil
}

func (t *TieredStore) Delete(ctx context.Context, key string) error {
	if t.primaryHealthy() {
		if err := t.primary.Delete(ctx, key); err != nil {
			t.markPrimaryDown(err)
		}
	}

	return t.fallback.Delete(ctx, key)
}

// InvalidatePattern removes matching keys from both stores and returns the
// larger of the two counts since the stores usually mirror each other.
func (t *TieredStore) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	var primaryCount int

	if t.primaryHealthy() {
		count, err := t.primary.DeletePattern(ctx, pattern)
		if err != nil {
			t.markPrimaryDown(err)
		}
		primaryCount = count
	}

	fallbackCount, err := t.fallback.DeletePattern(ctx, pattern)
	if err != nil {
		return primaryCount, err
	}

	if primaryCount > fallbackCount {
		return primaryCount, nil
	}
	return fallbackCount, nil
}

// ProbePrimary actively checks primary connectivity and updates the tier
// state. Invoked periodically by the maintenance scheduler.
func (t *TieredStore) ProbePrimary(ctx context.Context) bool {
	if t.primary == nil {
		return false
	}

	if err := t.primary.Ping(ctx); err != nil {
		atomic.StoreInt32(&t.primaryDown, 1)
		t.monitor.RecordPrimaryProbe(false)
		return false
	}

	if atomic.CompareAndSwapInt32(&t.primaryDown, 1, 0) {
		t.logger.Info("primary cache store recovered")
	}
	t.monitor.RecordPrimaryProbe(true)
	return true
}

// Sweep purges expired fallback entries and refreshes the utilization signal.
func (t *TieredStore) Sweep() int {
	removed := t.fallback.Sweep()
	t.reportFallbackUtilization()
	return removed
}

func (t *TieredStore) read(ctx context.Context, key string) *types.CacheEntry {
	if t.primaryHealthy() {
		entry, err := t.primary.Get(ctx, key)
		if err == nil {
			return entry
		}
		if !types.IsError(err, types.ErrCacheEntryNotFound) && !types.IsError(err, types.ErrCacheValueInvalid) {
			t.markPrimaryDown(err)
			t.monitor.RecordError("primary", 0)
		} else {
			// A primary miss is authoritative, do not fall through to a
			// possibly stale fallback copy.
			return nil
		}
	} else {
		t.tryReconnect(ctx)
	}

	entry, err := t.fallback.Get(ctx, key)
	if err != nil {
		return nil
	}
	return entry
}

func (t *TieredStore) evict(ctx context.Context, key string) {
	if t.primaryHealthy() {
		if err := t.primary.Delete(ctx, key); err != nil {
			t.markPrimaryDown(err)
		}
	}
	if err := t.fallback.Delete(ctx, key); err != nil {
		t.logger.Error("failed to evict expired entry", zap.String("key", key), zap.Error(err))
	}
}

func (t *TieredStore) primaryHealthy() bool {
	return t.primary != nil && atomic.LoadInt32(&t.primaryDown) == 0
}

func (t *TieredStore) markPrimaryDown(err error) {
	if atomic.CompareAndSwapInt32(&t.primaryDown, 0, 1) {
		t.logger.Warn("primary cache store unavailable, degrading to in-process store", zap.Error(err))
	}
	atomic.StoreInt64(&t.lastProbe, time.Now().UnixNano())
	t.monitor.RecordPrimaryProbe(false)
}

// tryReconnect pings the primary at most once per probe interval while the
// tier is degraded.
func (t *TieredStore) tryReconnect(ctx context.Context) {
	if t.primary == nil {
		return
	}

	last := atomic.LoadInt64(&t.lastProbe)
	now := time.Now().UnixNano()
	if now-last < int64(primaryProbeInterval) {
		return
	}
	if !atomic.CompareAndSwapInt64(&t.lastProbe, last, now) {
		return
	}

	if err := t.primary.Ping(ctx); err != nil {
		t.monitor.RecordPrimaryProbe(false)
		return
	}

	atomic.StoreInt32(&t.primaryDown, 0)
	t.monitor.RecordPrimaryProbe(true)
	t.logger.Info("primary cache store recovered")
}

func (t *TieredStore) reportFallbackUtilization() {
	capacity := t.fallback.Capacity()
	if capacity <= 0 {
		return
	}
	t.monitor.RecordFallbackUtilization(float64(t.fallback.Len()) / float64(capacity))
}

func cachedValue(entry *types.CacheEntry, now time.Time, stale bool) *types.CachedValue {
	return &types.CachedValue{
		Value:     entry.Value,
		SourceTag: entry.SourceTag,
		CreatedAt: entry.CreatedAt,
		Age:       now.Sub(entry.CreatedAt),
		Stale:     stale,
	}
}
