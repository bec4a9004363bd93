package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gridironlabs/gridfeed/types"
)

type nopLogger struct{}

func (*nopLogger) Error(string, ...zap.Field)              {}
func (*nopLogger) Warn(string, ...zap.Field)               {}
func (*nopLogger) Info(string, ...zap.Field)               {}
func (*nopLogger) Debug(string, ...zap.Field)              {}
func (*nopLogger) Log(zapcore.Level, string, ...zap.Field) {}

func attrsFromIP(ip string) *types.RequestAttributes {
	return &types.RequestAttributes{IP: ip, Endpoint: "/api/v1/odds"}
}

func TestFixedWindowBlocksOverLimit(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), []*types.RateLimitRule{{
		Name:          "fixed",
		Algorithm:     "fixed_window",
		Requests:      3,
		WindowSeconds: 60,
		Scope:         "ip",
	}})

	for i := 0; i < 3; i++ {
		decision := limiter.Check(context.Background(), attrsFromIP("1.2.3.4"))
		require.True(t, decision.Allowed, "request %d should be admitted", i+1)
	}

	decision := limiter.Check(context.Background(), attrsFromIP("1.2.3.4"))
	assert.False(t, decision.Allowed)
	assert.Equal(t, "fixed", decision.Rule)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.Zero(t, decision.Remaining)
}

func TestSlidingWindowAdmitsAfterWindowPasses(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), []*types.RateLimitRule{{
		Name:          "sliding",
		Algorithm:     "sliding_window",
		Requests:      2,
		WindowSeconds: 1,
		Scope:         "ip",
	}})

	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)

	blocked := limiter.Check(context.Background(), attrsFromIP("1.2.3.4"))
	require.False(t, blocked.Allowed)
	assert.Greater(t, blocked.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, blocked.RetryAfter, time.Second+100*time.Millisecond)

	time.Sleep(1100 * time.Millisecond)

	assert.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed,
		"timestamps outside the window must age out")
}

func TestSlidingWindowBurstExtendsLimit(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), []*types.RateLimitRule{{
		Name:          "sliding",
		Algorithm:     "sliding_window",
		Requests:      2,
		WindowSeconds: 10,
		Burst:         2,
		Scope:         "ip",
	}})

	for i := 0; i < 4; i++ {
		require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
	}
	assert.False(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
}

func TestTokenBucketRefills(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), []*types.RateLimitRule{{
		Name:          "bucket",
		Algorithm:     "token_bucket",
		Requests:      2,
		WindowSeconds: 1,
		Scope:         "ip",
	}})

	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)

	blocked := limiter.Check(context.Background(), attrsFromIP("1.2.3.4"))
	require.False(t, blocked.Allowed)
	assert.Greater(t, blocked.RetryAfter, time.Duration(0))

	// 2 tokens/second: one token is back after ~500ms.
	time.Sleep(600 * time.Millisecond)
	assert.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
}

func TestLeakyBucketDrains(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), []*types.RateLimitRule{{
		Name:          "leaky",
		Algorithm:     "leaky_bucket",
		Requests:      2,
		WindowSeconds: 1,
		Scope:         "ip",
	}})

	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
	require.False(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)

	time.Sleep(600 * time.Millisecond)
	assert.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
}

func TestLeakyBucketRejectsPartialDrain(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), []*types.RateLimitRule{{
		Name:          "leaky",
		Algorithm:     "leaky_bucket",
		Requests:      2,
		WindowSeconds: 10,
		Scope:         "ip",
	}})

	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)

	// The bucket drains 0.2/s; a moment later the level is still above 1,
	// so admitting a third request would exceed capacity.
	time.Sleep(50 * time.Millisecond)
	assert.False(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed,
		"a partially drained bucket must not admit past capacity")
}

func TestUnknownAlgorithmRejected(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), nil)

	_, err := limiter.evaluate(context.Background(), &types.RateLimitRule{
		Name:      "bogus",
		Algorithm: "lru",
		Scope:     "global",
	}, attrsFromIP("1.2.3.4"), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAlgorithmUnknown)
}

func TestHigherPriorityRuleBlocksFirst(t *testing.T) {
	rules := []*types.RateLimitRule{
		{
			Name:          "loose",
			Algorithm:     "fixed_window",
			Requests:      100,
			WindowSeconds: 60,
			Scope:         "ip",
			Priority:      10,
		},
		{
			Name:          "strict",
			Algorithm:     "fixed_window",
			Requests:      1,
			WindowSeconds: 60,
			Scope:         "ip",
			Priority:      50,
		},
	}

	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), rules)

	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)

	decision := limiter.Check(context.Background(), attrsFromIP("1.2.3.4"))
	require.False(t, decision.Allowed)
	assert.Equal(t, "strict", decision.Rule, "highest priority rule must block first")
}

func TestScopesPartitionState(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), []*types.RateLimitRule{{
		Name:          "per-ip",
		Algorithm:     "fixed_window",
		Requests:      1,
		WindowSeconds: 60,
		Scope:         "ip",
	}})

	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.1.1.1")).Allowed)
	require.False(t, limiter.Check(context.Background(), attrsFromIP("1.1.1.1")).Allowed)
	assert.True(t, limiter.Check(context.Background(), attrsFromIP("2.2.2.2")).Allowed,
		"a different IP has its own counter")
}

func TestEndpointFilteredRuleSkipsOtherPaths(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), []*types.RateLimitRule{{
		Name:          "odds-only",
		Algorithm:     "fixed_window",
		Requests:      1,
		WindowSeconds: 60,
		Scope:         "ip",
		Endpoints:     []string{"/api/v1/odds"},
	}})

	attrs := &types.RequestAttributes{IP: "1.2.3.4", Endpoint: "/api/v1/scores"}
	for i := 0; i < 5; i++ {
		require.True(t, limiter.Check(context.Background(), attrs).Allowed)
	}

	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
	assert.False(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
}

func TestAPIKeyScopeFallsBackToIP(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, NewMemoryStore(), []*types.RateLimitRule{{
		Name:          "per-key",
		Algorithm:     "fixed_window",
		Requests:      1,
		WindowSeconds: 60,
		Scope:         "api_key",
	}})

	keyed := &types.RequestAttributes{IP: "1.2.3.4", APIKey: "abc"}
	anonymous := &types.RequestAttributes{IP: "1.2.3.4"}

	require.True(t, limiter.Check(context.Background(), keyed).Allowed)
	require.True(t, limiter.Check(context.Background(), anonymous).Allowed,
		"anonymous caller counts against the IP, not the key")
	assert.False(t, limiter.Check(context.Background(), keyed).Allowed)
}

type failingStore struct{}

func (failingStore) IncrWindow(context.Context, string, time.Duration) (int64, error) {
	return 0, types.Errorf(types.ErrStoreFailed, "store down")
}

func (failingStore) SlidingCount(context.Context, string, time.Time, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, types.Errorf(types.ErrStoreFailed, "store down")
}

func (failingStore) SlidingAdd(context.Context, string, time.Time, time.Duration) error {
	return types.Errorf(types.ErrStoreFailed, "store down")
}

func (failingStore) GetBucket(context.Context, string) (*types.BucketState, error) {
	return nil, types.Errorf(types.ErrStoreFailed, "store down")
}

func (failingStore) SetBucket(context.Context, string, *types.BucketState, time.Duration) error {
	return types.Errorf(types.ErrStoreFailed, "store down")
}

func TestStoreFailureFailsOpen(t *testing.T) {
	limiter := NewLimiter(&nopLogger{}, failingStore{}, []*types.RateLimitRule{{
		Name:          "fixed",
		Algorithm:     "fixed_window",
		Requests:      1,
		WindowSeconds: 60,
		Scope:         "global",
	}})

	decision := limiter.Check(context.Background(), attrsFromIP("1.2.3.4"))
	assert.True(t, decision.Allowed, "a broken store must not reject traffic")
}
