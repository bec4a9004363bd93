package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gridironlabs/gridfeed/types"
)

func testMonitorConfig() *types.CacheMonitorConfig {
	return &types.CacheMonitorConfig{
		WindowSize:        100,
		MaxErrorRate:      0.20,
		MinRequests:       10,
		MinHitRate:        0.10,
		CapacityHighWater: 0.90,
		MaxPrimaryErrors:  3,
	}
}

func TestMonitorHealthyByDefault(t *testing.T) {
	monitor := NewHealthMonitor(testMonitorConfig())

	assert.True(t, monitor.IsHealthy())
	assert.True(t, monitor.ShouldUseCache())

	rec := monitor.FallbackRecommendation()
	assert.True(t, rec.UseCache)
	assert.Equal(t, "normal", rec.Strategy)
}

func TestMonitorUnhealthyOnErrorRate(t *testing.T) {
	monitor := NewHealthMonitor(testMonitorConfig())

	for i := 0; i < 7; i++ {
		monitor.RecordHit(time.Millisecond)
	}
	for i := 0; i < 3; i++ {
		monitor.RecordError("fallback", time.Millisecond)
	}

	// 30% errors over 10 observations.
	assert.False(t, monitor.IsHealthy())
	assert.False(t, monitor.ShouldUseCache())
	assert.Equal(t, "direct_fetch", monitor.FallbackRecommendation().Strategy)
}

func TestMonitorPrimaryErrorStreak(t *testing.T) {
	monitor := NewHealthMonitor(testMonitorConfig())

	monitor.RecordError("primary", time.Millisecond)
	monitor.RecordError("primary", time.Millisecond)
	assert.True(t, monitor.IsHealthy(), "two primary errors stay under the threshold")

	monitor.RecordError("primary", time.Millisecond)
	assert.False(t, monitor.IsHealthy())

	// A successful probe clears the streak.
	monitor.RecordPrimaryProbe(true)
	for i := 0; i < 20; i++ {
		monitor.RecordHit(time.Millisecond)
	}
	assert.True(t, monitor.IsHealthy())
}

func TestMonitorPrimaryDownNearCapacity(t *testing.T) {
	monitor := NewHealthMonitor(testMonitorConfig())

	monitor.RecordPrimaryProbe(false)
	monitor.RecordFallbackUtilization(0.50)
	assert.True(t, monitor.IsHealthy())
	assert.Equal(t, "fallback_store", monitor.FallbackRecommendation().Strategy)

	monitor.RecordFallbackUtilization(0.95)
	assert.False(t, monitor.IsHealthy())
	assert.Equal(t, "direct_fetch", monitor.FallbackRecommendation().Strategy)
}

func TestMonitorBypassesUselessCache(t *testing.T) {
	monitor := NewHealthMonitor(testMonitorConfig())

	monitor.RecordHit(time.Millisecond)
	for i := 0; i < 19; i++ {
		monitor.RecordMiss(time.Millisecond)
	}

	// 5% hit rate over 20 requests: healthy, but not worth consulting.
	assert.True(t, monitor.IsHealthy())
	assert.False(t, monitor.ShouldUseCache())
	assert.Equal(t, "direct_fetch", monitor.FallbackRecommendation().Strategy)
}

func TestMonitorWindowSlides(t *testing.T) {
	config := testMonitorConfig()
	config.WindowSize = 10
	monitor := NewHealthMonitor(config)

	for i := 0; i < 10; i++ {
		monitor.RecordError("fallback", time.Millisecond)
	}
	assert.False(t, monitor.IsHealthy())

	// Fresh hits push the errors out of the accounting window.
	for i := 0; i < 10; i++ {
		monitor.RecordHit(time.Millisecond)
	}
	assert.True(t, monitor.IsHealthy())

	stats := monitor.Stats()
	assert.Equal(t, 10, stats.Hits)
	assert.Zero(t, stats.Errors)
	assert.Equal(t, uint64(20), stats.TotalRequests)
}
