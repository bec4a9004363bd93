package types

import (
	"time"
)

// Logical data types served by upstream providers.
const (
	DataTypeOdds     = "odds"
	DataTypeScores   = "scores"
	DataTypeStats    = "stats"
	DataTypeNews     = "news"
	DataTypeInjuries = "injuries"
)

type SourceHealth string

const (
	SourceHealthy   SourceHealth = "healthy"
	SourceDegraded  SourceHealth = "degraded"
	SourceUnhealthy SourceHealth = "unhealthy"
	SourceOffline   SourceHealth = "offline"
)

type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Priority tiers for source ranking. Rank score is tier*10 + health score.
const (
	TierPrimary   = 4
	TierSecondary = 3
	TierFallback  = 2
	TierEmergency = 1
)

func TierValue(tier string) int {
	switch tier {
	case "primary":
		return TierPrimary
	case "secondary":
		return TierSecondary
	case "fallback":
		return TierFallback
	case "emergency":
		return TierEmergency
	default:
		return 0
	}
}

func HealthScore(h SourceHealth) int {
	switch h {
	case SourceHealthy:
		return 3
	case SourceDegraded:
		return 2
	case SourceUnhealthy:
		return 1
	default:
		return 0
	}
}

type SourceHealthState struct {
	Source               string        `json:"source"`
	SuccessCount         int64         `json:"success_count"`
	ErrorCount           int64         `json:"error_count"`
	TotalRequests        int64         `json:"total_requests"`
	ConsecutiveErrors    int           `json:"consecutive_errors"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	AvgResponseTime      time.Duration `json:"avg_response_time"`
	LastSuccessAt        time.Time     `json:"last_success_at"`
	LastErrorAt          time.Time     `json:"last_error_at"`
	Circuit              CircuitState  `json:"circuit"`
	Health               SourceHealth  `json:"health"`
}

// SourceTracker owns per-source health state. It is mutated only through
// RecordOutcome; everything else is a read.
type SourceTracker interface {
	RecordOutcome(source string, success bool, responseTime time.Duration)
	Health(source string) SourceHealth
	IsOpen(source string) bool
	State(source string) (SourceHealthState, bool)
	Snapshot() []SourceHealthState
}

// HealthTransitionSink receives one-shot health transition events. The
// tracker deduplicates per (source, new state); sinks never see repeats for
// an unchanged state.
type HealthTransitionSink interface {
	HealthTransition(source string, from, to SourceHealth, state SourceHealthState)
}

// SourceRouter ranks the sources capable of serving a data type, best first.
type SourceRouter interface {
	Rank(dataType string) []*SourceConfig
}
