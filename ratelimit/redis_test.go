package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridironlabs/gridfeed/types"
)

func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client)
}

func TestRedisIncrWindow(t *testing.T) {
	store := newRedisTestStore(t)

	for want := int64(1); want <= 3; want++ {
		count, err := store.IncrWindow(context.Background(), "win:1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	count, err := store.IncrWindow(context.Background(), "win:2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "a new window key starts from zero")
}

func TestRedisSlidingWindow(t *testing.T) {
	store := newRedisTestStore(t)
	now := time.Now()
	window := time.Minute

	count, oldest, err := store.SlidingCount(context.Background(), "slide", now, window)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, oldest.IsZero())

	first := now.Add(-30 * time.Second)
	require.NoError(t, store.SlidingAdd(context.Background(), "slide", first, window))
	require.NoError(t, store.SlidingAdd(context.Background(), "slide", now, window))

	count, oldest, err = store.SlidingCount(context.Background(), "slide", now, window)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.WithinDuration(t, first, oldest, time.Millisecond)

	// Entries older than the window are pruned on the next count.
	later := now.Add(45 * time.Second)
	count, oldest, err = store.SlidingCount(context.Background(), "slide", later, window)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.WithinDuration(t, now, oldest, time.Millisecond)
}

func TestRedisBucketRoundTrip(t *testing.T) {
	store := newRedisTestStore(t)

	state, err := store.GetBucket(context.Background(), "bucket")
	require.NoError(t, err)
	assert.Nil(t, state, "missing bucket reads as nil, not an error")

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.SetBucket(context.Background(), "bucket", &types.BucketState{
		Tokens:    4.5,
		UpdatedAt: now,
	}, time.Minute))

	state, err = store.GetBucket(context.Background(), "bucket")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.InDelta(t, 4.5, state.Tokens, 1e-9)
	assert.True(t, state.UpdatedAt.Equal(now))
}

func TestLimiterAgainstRedisStore(t *testing.T) {
	store := newRedisTestStore(t)
	limiter := NewLimiter(&nopLogger{}, store, []*types.RateLimitRule{{
		Name:          "global",
		Algorithm:     "sliding_window",
		Requests:      2,
		WindowSeconds: 60,
		Scope:         "global",
	}})

	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
	require.True(t, limiter.Check(context.Background(), attrsFromIP("5.6.7.8")).Allowed,
		"global scope shares one counter across IPs")

	decision := limiter.Check(context.Background(), attrsFromIP("9.9.9.9"))
	assert.False(t, decision.Allowed)
	assert.Equal(t, "global", decision.Rule)
}
