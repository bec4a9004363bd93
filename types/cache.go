package types

import (
	"context"
	"time"
)

// CacheStore is the tiered TTL store consumed by the fetch orchestrator.
// Primary-store connectivity failures never surface here; they degrade to the
// in-process fallback.
type CacheStore interface {
	LifecycleManager
	Get(ctx context.Context, key string) (*CachedValue, bool)
	GetStale(ctx context.Context, key string) (*CachedValue, bool)
	Set(ctx context.Context, key string, value interface{}, sourceTag string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
}

// CacheBackend is a single physical store (Redis or in-process memory).
// Get returns entries even past their logical expiry so the tiered store can
// serve them as stale; callers apply freshness.
type CacheBackend interface {
	LifecycleManager
	Name() string
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, entry *CacheEntry, retention time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

type CacheEntry struct {
	Key       string        `json:"key"`
	Value     interface{}   `json:"value"`
	SourceTag string        `json:"source_tag"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Expired reports logical expiry; physical records may outlive it so they can
// be served explicitly as stale during fallback.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

type CachedValue struct {
	Value     interface{}   `json:"value"`
	SourceTag string        `json:"source_tag"`
	CreatedAt time.Time     `json:"created_at"`
	Age       time.Duration `json:"age"`
	Stale     bool          `json:"stale"`
}

// CacheMonitor accumulates cache observations and produces advisory verdicts.
// It never mutates the store.
type CacheMonitor interface {
	RecordHit(d time.Duration)
	RecordMiss(d time.Duration)
	RecordError(errType string, d time.Duration)
	RecordPrimaryProbe(ok bool)
	RecordFallbackUtilization(ratio float64)
	IsHealthy() bool
	ShouldUseCache() bool
	FallbackRecommendation() FallbackRecommendation
}

type FallbackRecommendation struct {
	UseCache bool   `json:"use_cache"`
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}
