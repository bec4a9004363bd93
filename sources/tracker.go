package sources

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
)

// minHealthSample is the request count below which a source is assumed
// healthy rather than judged on too little data.
const minHealthSample = 5

const (
	defaultMaxConsecutiveErrors = 3
	defaultRecoveryTimeout      = 60 * time.Second
	defaultUnhealthyThreshold   = 0.50
	defaultDegradedThreshold    = 0.75
)

// Tracker owns per-source health accounting and the circuit breaker. All
// mutation funnels through RecordOutcome and the half-open admission in
// IsOpen.
type Tracker struct {
	logger   types.Logger
	configs  map[string]*types.SourceConfig
	states   map[string]*sourceState
	sinks    []types.HealthTransitionSink
	notified map[string]map[types.SourceHealth]bool
	mu       sync.Mutex
}

type sourceState struct {
	successCount         int64
	errorCount           int64
	consecutiveErrors    int
	consecutiveSuccesses int
	totalResponseTime    time.Duration
	lastSuccessAt        time.Time
	lastErrorAt          time.Time
	circuit              types.CircuitState
	openedAt             time.Time
	health               types.SourceHealth
}

func NewTracker(logger types.Logger, configs []*types.SourceConfig) *Tracker {
	byName := make(map[string]*types.SourceConfig, len(configs))
	states := make(map[string]*sourceState, len(configs))
	for _, config := range configs {
		byName[config.Name] = config
		states[config.Name] = &sourceState{health: types.SourceHealthy}
	}

	return &Tracker{
		logger:   logger,
		configs:  byName,
		states:   states,
		notified: make(map[string]map[types.SourceHealth]bool),
	}
}

// AddSink registers a one-shot transition listener. Not safe to call after
// traffic starts; wire sinks during construction.
func (t *Tracker) AddSink(sink types.HealthTransitionSink) {
	t.sinks = append(t.sinks, sink)
}

func (t *Tracker) RecordOutcome(source string, success bool, responseTime time.Duration) {
	t.mu.Lock()

	state := t.stateLocked(source)
	now := time.Now()

	if success {
		state.successCount++
		state.consecutiveSuccesses++
		state.consecutiveErrors = 0
		state.lastSuccessAt = now

		if state.circuit == types.CircuitHalfOpen {
			state.circuit = types.CircuitClosed
			t.logger.Info("circuit closed after successful trial", zap.String("source", source))
		}
	} else {
		state.errorCount++
		state.consecutiveErrors++
		state.consecutiveSuccesses = 0
		state.lastErrorAt = now

		switch state.circuit {
		case types.CircuitHalfOpen:
			state.circuit = types.CircuitOpen
			state.openedAt = now
			t.logger.Warn("circuit reopened after failed trial", zap.String("source", source))
		case types.CircuitClosed:
			if state.consecutiveErrors >= t.maxConsecutiveErrors(source) {
				state.circuit = types.CircuitOpen
				state.openedAt = now
				t.logger.Warn("circuit opened",
					zap.String("source", source),
					zap.Int("consecutive_errors", state.consecutiveErrors))
			}
		}
	}

	state.totalResponseTime += responseTime

	previous := state.health
	state.health = t.classifyLocked(source, state)

	var transition *types.SourceHealthState
	if state.health != previous && !t.alreadyNotifiedLocked(source, state.health) {
		snapshot := t.snapshotStateLocked(source, state)
		transition = &snapshot
	}
	from, to := previous, state.health

	t.mu.Unlock()

	if transition != nil {
		for _, sink := range t.sinks {
			sink.HealthTransition(source, from, to, *transition)
		}
	}
}

func (t *Tracker) Health(source string) types.SourceHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.states[source]
	if !exists {
		return types.SourceHealthy
	}
	return t.classifyLocked(source, state)
}

// IsOpen reports whether calls to the source must be rejected locally. Once
// the recovery timeout elapses the circuit moves to half-open and exactly one
// caller is admitted as the trial.
func (t *Tracker) IsOpen(source string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.states[source]
	if !exists {
		return false
	}

	switch state.circuit {
	case types.CircuitClosed:
		return false
	case types.CircuitHalfOpen:
		// Trial already in flight.
		return true
	default:
		if time.Since(state.openedAt) < t.recoveryTimeout(source) {
			return true
		}
		state.circuit = types.CircuitHalfOpen
		t.logger.Info("circuit half-open, admitting trial call", zap.String("source", source))
		return false
	}
}

func (t *Tracker) State(source string) (types.SourceHealthState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.states[source]
	if !exists {
		return types.SourceHealthState{}, false
	}
	return t.snapshotStateLocked(source, state), true
}

func (t *Tracker) Snapshot() []types.SourceHealthState {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.states))
	for name := range t.states {
		names = append(names, name)
	}
	sort.Strings(names)

	snapshot := make([]types.SourceHealthState, 0, len(names))
	for _, name := range names {
		snapshot = append(snapshot, t.snapshotStateLocked(name, t.states[name]))
	}
	return snapshot
}

func (t *Tracker) stateLocked(source string) *sourceState {
	state, exists := t.states[source]
	if !exists {
		state = &sourceState{health: types.SourceHealthy}
		t.states[source] = state
	}
	return state
}

// classifyLocked derives the health grade from the circuit and the success
// rate over a minimum sample.
func (t *Tracker) classifyLocked(source string, state *sourceState) types.SourceHealth {
	if state.circuit == types.CircuitOpen {
		return types.SourceOffline
	}

	total := state.successCount + state.errorCount
	if total < minHealthSample {
		return types.SourceHealthy
	}

	successRate := float64(state.successCount) / float64(total)
	config := t.configs[source]

	unhealthy := defaultUnhealthyThreshold
	degraded := defaultDegradedThreshold
	if config != nil {
		if config.UnhealthyThreshold > 0 {
			unhealthy = config.UnhealthyThreshold
		}
		if config.DegradedThreshold > 0 {
			degraded = config.DegradedThreshold
		}
	}

	switch {
	case successRate < unhealthy:
		return types.SourceUnhealthy
	case successRate < degraded:
		return types.SourceDegraded
	default:
		return types.SourceHealthy
	}
}

// alreadyNotifiedLocked marks and reports (source, state) pairs so each
// transition target fires at most once per process lifetime.
func (t *Tracker) alreadyNotifiedLocked(source string, health types.SourceHealth) bool {
	seen, exists := t.notified[source]
	if !exists {
		seen = make(map[types.SourceHealth]bool)
		t.notified[source] = seen
	}
	if seen[health] {
		return true
	}
	seen[health] = true
	return false
}

func (t *Tracker) snapshotStateLocked(source string, state *sourceState) types.SourceHealthState {
	total := state.successCount + state.errorCount

	var avg time.Duration
	if total > 0 {
		avg = state.totalResponseTime / time.Duration(total)
	}

	return types.SourceHealthState{
		Source:               source,
		SuccessCount:         state.successCount,
		ErrorCount:           state.errorCount,
		TotalRequests:        total,
		ConsecutiveErrors:    state.consecutiveErrors,
		ConsecutiveSuccesses: state.consecutiveSuccesses,
		AvgResponseTime:      avg,
		LastSuccessAt:        state.lastSuccessAt,
		LastErrorAt:          state.lastErrorAt,
		Circuit:              state.circuit,
		Health:               t.classifyLocked(source, state),
	}
}

func (t *Tracker) maxConsecutiveErrors(source string) int {
	if config := t.configs[source]; config != nil && config.MaxConsecutiveErrors > 0 {
		return config.MaxConsecutiveErrors
	}
	return defaultMaxConsecutiveErrors
}

func (t *Tracker) recoveryTimeout(source string) time.Duration {
	if config := t.configs[source]; config != nil && config.RecoveryTimeout > 0 {
		return config.RecoveryTimeout
	}
	return defaultRecoveryTimeout
}
