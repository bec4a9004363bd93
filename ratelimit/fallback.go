package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
)

const sharedProbeInterval = 5 * time.Second

// FallbackStore layers the shared counting store over a per-instance memory
// store. When the shared store errors, counting continues locally so limits
// keep holding per instance instead of failing open; a throttled probe moves
// traffic back once the shared store answers again. Counts accumulated while
// degraded are not replayed, which is the accepted drift.
type FallbackStore struct {
	logger types.Logger
	shared types.RateLimitStore
	local  *MemoryStore

	sharedDown int32
	lastProbe  int64
}

func NewFallbackStore(logger types.Logger, shared types.RateLimitStore) *FallbackStore {
	return &FallbackStore{
		logger: logger,
		shared: shared,
		local:  NewMemoryStore(),
	}
}

func (f *FallbackStore) IncrWindow(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	if f.useShared() {
		count, err := f.shared.IncrWindow(ctx, key, expiry)
		if err == nil {
			f.markSharedUp()
			return count, nil
		}
		f.markSharedDown(err)
	}
	return f.local.IncrWindow(ctx, key, expiry)
}

func (f *FallbackStore) SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	if f.useShared() {
		count, oldest, err := f.shared.SlidingCount(ctx, key, now, window)
		if err == nil {
			f.markSharedUp()
			return count, oldest, nil
		}
		f.markSharedDown(err)
	}
	return f.local.SlidingCount(ctx, key, now, window)
}

func (f *FallbackStore) SlidingAdd(ctx context.Context, key string, now time.Time, window time.Duration) error {
	if f.useShared() {
		err := f.shared.SlidingAdd(ctx, key, now, window)
		if err == nil {
			f.markSharedUp()
			return nil
		}
		f.markSharedDown(err)
	}
	return f.local.SlidingAdd(ctx, key, now, window)
}

func (f *FallbackStore) GetBucket(ctx context.Context, key string) (*types.BucketState, error) {
	if f.useShared() {
		state, err := f.shared.GetBucket(ctx, key)
		if err == nil {
			f.markSharedUp()
			return state, nil
		}
		f.markSharedDown(err)
	}
	return f.local.GetBucket(ctx, key)
}

func (f *FallbackStore) SetBucket(ctx context.Context, key string, state *types.BucketState, expiry time.Duration) error {
	if f.useShared() {
		err := f.shared.SetBucket(ctx, key, state, expiry)
		if err == nil {
			f.markSharedUp()
			return nil
		}
		f.markSharedDown(err)
	}
	return f.local.SetBucket(ctx, key, state, expiry)
}

// useShared reports whether this call should try the shared store: always
// while it is up, and at most once per probe interval while it is down.
func (f *FallbackStore) useShared() bool {
	if atomic.LoadInt32(&f.sharedDown) == 0 {
		return true
	}

	last := atomic.LoadInt64(&f.lastProbe)
	now := time.Now().UnixNano()
	if now-last < int64(sharedProbeInterval) {
		return false
	}
	return atomic.CompareAndSwapInt64(&f.lastProbe, last, now)
}

func (f *FallbackStore) markSharedUp() {
	if atomic.CompareAndSwapInt32(&f.sharedDown, 1, 0) {
		f.logger.Info("shared rate limit store recovered")
	}
}

func (f *FallbackStore) markSharedDown(err error) {
	atomic.StoreInt64(&f.lastProbe, time.Now().UnixNano())
	if atomic.CompareAndSwapInt32(&f.sharedDown, 0, 1) {
		f.logger.Warn("shared rate limit store unavailable, counting per instance", zap.Error(err))
	}
}
