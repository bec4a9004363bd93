package cache

import (
	"context"
	"time"

	"github.com/gridironlabs/gridfeed/types"
)

// NewCacheStore assembles the tiered store with its health monitor and wraps
// it with metrics instrumentation. The retention argument controls how long
// expired entries stay physically readable for stale fallback.
func NewCacheStore(
	ctx context.Context,
	logger types.Logger,
	config *types.CacheConfig,
	retention time.Duration,
	metrics types.MetricsManager,
) (*InstrumentedStore, *HealthMonitor, error) {
	if config == nil || !config.Enabled {
		return nil, nil, types.ErrCacheIsDisabled
	}

	monitor := NewHealthMonitor(config.Monitor)
	fallback := NewMemoryStore(ctx, logger, config.Memory)

	var primary *RedisStore
	if config.Redis != nil {
		store, err := NewRedisStore(ctx, logger, config.Redis)
		if err != nil {
			return nil, nil, err
		}
		primary = store
	}

	tiered := NewTieredStore(ctx, logger, config, retention, primary, fallback, monitor)

	return &InstrumentedStore{
		impl:    tiered,
		logger:  logger,
		metrics: metrics,
	}, monitor, nil
}

// InstrumentedStore records operation counters and latencies around the
// tiered store.
type InstrumentedStore struct {
	impl    *TieredStore
	logger  types.Logger
	metrics types.MetricsManager
}

func (s *InstrumentedStore) Start() error    { return s.impl.Start() }
func (s *InstrumentedStore) Stop() error     { return s.impl.Stop() }
func (s *InstrumentedStore) IsRunning() bool { return s.impl.IsRunning() }
func (s *InstrumentedStore) Sweep() int      { return s.impl.Sweep() }
func (s *InstrumentedStore) ProbePrimary(ctx context.Context) bool {
	return s.impl.ProbePrimary(ctx)
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (*types.CachedValue, bool) {
	start := time.Now()
	value, exists := s.impl.Get(ctx, key)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	s.recordMetric("get", result, duration)
	return value, exists
}

func (s *InstrumentedStore) GetStale(ctx context.Context, key string) (*types.CachedValue, bool) {
	start := time.Now()
	value, exists := s.impl.GetStale(ctx, key)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	s.recordMetric("get_stale", result, duration)
	return value, exists
}

func (s *InstrumentedStore) Set(ctx context.Context, key string, value interface{}, sourceTag string, ttl time.Duration) error {
	start := time.Now()
	err := s.impl.Set(ctx, key, value, sourceTag, ttl)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	s.recordMetric("set", result, duration)
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.impl.Delete(ctx, key)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	s.recordMetric("delete", result, duration)
	return err
}

func (s *InstrumentedStore) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	start := time.Now()
	count, err := s.impl.InvalidatePattern(ctx, pattern)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	s.recordMetric("invalidate", result, duration)
	return count, err
}

func (s *InstrumentedStore) recordMetric(operation, result string, duration time.Duration) {
	if s.metrics == nil {
		return
	}

	s.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()

	s.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	).Observe(duration.Seconds())
}
