package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridironlabs/gridfeed/types"
)

func TestFallbackStoreKeepsLimitingWhenSharedIsDown(t *testing.T) {
	store := NewFallbackStore(&nopLogger{}, failingStore{})
	limiter := NewLimiter(&nopLogger{}, store, []*types.RateLimitRule{{
		Name:          "fixed",
		Algorithm:     "fixed_window",
		Requests:      2,
		WindowSeconds: 60,
		Scope:         "ip",
	}})

	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
	require.True(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed)
	assert.False(t, limiter.Check(context.Background(), attrsFromIP("1.2.3.4")).Allowed,
		"limits must keep holding on the in-process store while the shared store is down")
}

func TestFallbackStoreProbesSharedAtMostOncePerInterval(t *testing.T) {
	store := NewFallbackStore(&nopLogger{}, failingStore{})

	_, err := store.IncrWindow(context.Background(), "probe", time.Minute)
	require.NoError(t, err, "the local store absorbs the failed shared call")

	assert.False(t, store.useShared(), "a fresh failure suppresses shared probes")

	count, err := store.IncrWindow(context.Background(), "probe", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "degraded counting continues on the same local counter")
}
