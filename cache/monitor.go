package cache

import (
	"sync"
	"time"

	"github.com/gridironlabs/gridfeed/types"
)

const (
	outcomeHit = iota
	outcomeMiss
	outcomeError
)

// HealthMonitor accumulates cache outcomes over a sliding accounting window
// and produces advisory verdicts for the fetch layer. It never touches the
// store itself.
type HealthMonitor struct {
	config *types.CacheMonitorConfig

	window   []uint8
	cursor   int
	filled   bool
	hits     int
	misses   int
	errors   int
	totalAll uint64

	primaryErrors       int
	primaryDown         bool
	fallbackUtilization float64

	totalLatency time.Duration
	latencyCount uint64

	mu sync.RWMutex
}

func NewHealthMonitor(config *types.CacheMonitorConfig) *HealthMonitor {
	if config == nil {
		config = &types.CacheMonitorConfig{}
	}

	windowSize := config.WindowSize
	if windowSize <= 0 {
		windowSize = 1000
	}

	return &HealthMonitor{
		config: config,
		window: make([]uint8, windowSize),
	}
}

func (h *HealthMonitor) RecordHit(d time.Duration) {
	h.record(outcomeHit, d)
}

func (h *HealthMonitor) RecordMiss(d time.Duration) {
	h.record(outcomeMiss, d)
}

func (h *HealthMonitor) RecordError(errType string, d time.Duration) {
	h.record(outcomeError, d)

	if errType == "primary" {
		h.mu.Lock()
		h.primaryErrors++
		h.mu.Unlock()
	}
}

// RecordPrimaryProbe feeds the result of a primary-store health probe. A
// successful probe clears the accumulated primary error streak.
func (h *HealthMonitor) RecordPrimaryProbe(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.primaryDown = !ok
	if ok {
		h.primaryErrors = 0
	}
}

func (h *HealthMonitor) RecordFallbackUtilization(ratio float64) {
	h.mu.Lock()
	h.fallbackUtilization = ratio
	h.mu.Unlock()
}

func (h *HealthMonitor) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.healthyLocked()
}

// ShouldUseCache reports whether the fetch layer should bother consulting the
// cache at all. Beyond plain health, a cache that is observably not helping
// (enough traffic, almost no hits) gets bypassed.
func (h *HealthMonitor) ShouldUseCache() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.healthyLocked() {
		return false
	}
	return !h.lowHitRateLocked()
}

func (h *HealthMonitor) FallbackRecommendation() types.FallbackRecommendation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	maxPrimaryErrors := h.config.MaxPrimaryErrors
	if maxPrimaryErrors <= 0 {
		maxPrimaryErrors = 3
	}

	switch {
	case h.errorRateExceededLocked():
		return types.FallbackRecommendation{
			UseCache: false,
			Strategy: "direct_fetch",
			Reason:   "cache error rate above threshold",
		}
	case h.primaryErrors >= maxPrimaryErrors:
		return types.FallbackRecommendation{
			UseCache: false,
			Strategy: "direct_fetch",
			Reason:   "repeated primary store errors without recovery",
		}
	case h.primaryDown && h.fallbackUtilization >= h.capacityHighWater():
		return types.FallbackRecommendation{
			UseCache: false,
			Strategy: "direct_fetch",
			Reason:   "primary store down and fallback store near capacity",
		}
	case h.primaryDown:
		return types.FallbackRecommendation{
			UseCache: true,
			Strategy: "fallback_store",
			Reason:   "primary store down, serving from in-process store",
		}
	case h.lowHitRateLocked():
		return types.FallbackRecommendation{
			UseCache: false,
			Strategy: "direct_fetch",
			Reason:   "hit rate too low to justify cache overhead",
		}
	default:
		return types.FallbackRecommendation{
			UseCache: true,
			Strategy: "normal",
			Reason:   "cache healthy",
		}
	}
}

// MonitorStats is a point-in-time snapshot for admin reporting.
type MonitorStats struct {
	Hits           int           `json:"hits"`
	Misses         int           `json:"misses"`
	Errors         int           `json:"errors"`
	HitRate        float64       `json:"hit_rate"`
	ErrorRate      float64       `json:"error_rate"`
	TotalRequests  uint64        `json:"total_requests"`
	AvgResponseMs  float64       `json:"avg_response_ms"`
	PrimaryDown    bool          `json:"primary_down"`
	PrimaryErrors  int           `json:"primary_errors"`
	FallbackFilled float64       `json:"fallback_utilization"`
	WindowSpan     time.Duration `json:"-"`
}

func (h *HealthMonitor) Stats() MonitorStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var avgMs float64
	if h.latencyCount > 0 {
		avgMs = float64(h.totalLatency.Milliseconds()) / float64(h.latencyCount)
	}

	return MonitorStats{
		Hits:           h.hits,
		Misses:         h.misses,
		Errors:         h.errors,
		HitRate:        h.hitRateLocked(),
		ErrorRate:      h.errorRateLocked(),
		TotalRequests:  h.totalAll,
		AvgResponseMs:  avgMs,
		PrimaryDown:    h.primaryDown,
		PrimaryErrors:  h.primaryErrors,
		FallbackFilled: h.fallbackUtilization,
	}
}

func (h *HealthMonitor) record(outcome uint8, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.filled {
		switch h.window[h.cursor] {
		case outcomeHit:
			h.hits--
		case outcomeMiss:
			h.misses--
		case outcomeError:
			h.errors--
		}
	}

	h.window[h.cursor] = outcome
	switch outcome {
	case outcomeHit:
		h.hits++
	case outcomeMiss:
		h.misses++
	case outcomeError:
		h.errors++
	}

	h.cursor++
	if h.cursor == len(h.window) {
		h.cursor = 0
		h.filled = true
	}

	h.totalAll++
	h.totalLatency += d
	h.latencyCount++
}

func (h *HealthMonitor) healthyLocked() bool {
	if h.errorRateExceededLocked() {
		return false
	}

	maxPrimaryErrors := h.config.MaxPrimaryErrors
	if maxPrimaryErrors <= 0 {
		maxPrimaryErrors = 3
	}
	if h.primaryErrors >= maxPrimaryErrors {
		return false
	}

	if h.primaryDown && h.fallbackUtilization >= h.capacityHighWater() {
		return false
	}

	return true
}

// errorRateExceededLocked applies the 20% rule only once the window holds a
// meaningful sample; a couple of early errors must not trip it before the
// primary-streak rule gets a say.
func (h *HealthMonitor) errorRateExceededLocked() bool {
	minRequests := h.config.MinRequests
	if minRequests <= 0 {
		minRequests = 100
	}

	total := h.hits + h.misses + h.errors
	return total >= minRequests && h.errorRateLocked() > h.maxErrorRate()
}

func (h *HealthMonitor) lowHitRateLocked() bool {
	minRequests := h.config.MinRequests
	if minRequests <= 0 {
		minRequests = 100
	}

	minHitRate := h.config.MinHitRate
	if minHitRate <= 0 {
		minHitRate = 0.10
	}

	total := h.hits + h.misses + h.errors
	return total >= minRequests && h.hitRateLocked() < minHitRate
}

func (h *HealthMonitor) hitRateLocked() float64 {
	total := h.hits + h.misses + h.errors
	if total == 0 {
		return 0
	}
	return float64(h.hits) / float64(total)
}

func (h *HealthMonitor) errorRateLocked() float64 {
	total := h.hits + h.misses + h.errors
	if total == 0 {
		return 0
	}
	return float64(h.errors) / float64(total)
}

func (h *HealthMonitor) maxErrorRate() float64 {
	if h.config.MaxErrorRate > 0 {
		return h.config.MaxErrorRate
	}
	return 0.20
}

func (h *HealthMonitor) capacityHighWater() float64 {
	if h.config.CapacityHighWater > 0 {
		return h.config.CapacityHighWater
	}
	return 0.90
}
