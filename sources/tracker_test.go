package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gridironlabs/gridfeed/types"
)

func testSourceConfig(name, tier string) *types.SourceConfig {
	return &types.SourceConfig{
		Name:                 name,
		BaseURL:              "https://api.example.com",
		Tier:                 tier,
		DataTypes:            []string{types.DataTypeOdds},
		MaxConsecutiveErrors: 3,
		RecoveryTimeout:      50 * time.Millisecond,
		UnhealthyThreshold:   0.50,
		DegradedThreshold:    0.75,
	}
}

func newTestTracker(configs ...*types.SourceConfig) *Tracker {
	return NewTracker(zapTestLogger(), configs)
}

func zapTestLogger() types.Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (*nopLogger) Error(string, ...zap.Field)              {}
func (*nopLogger) Warn(string, ...zap.Field)               {}
func (*nopLogger) Info(string, ...zap.Field)               {}
func (*nopLogger) Debug(string, ...zap.Field)              {}
func (*nopLogger) Log(zapcore.Level, string, ...zap.Field) {}

type transitionRecorder struct {
	transitions []string
}

func (r *transitionRecorder) HealthTransition(source string, from, to types.SourceHealth, state types.SourceHealthState) {
	r.transitions = append(r.transitions, source+":"+string(to))
}

func TestTrackerCircuitOpensAfterConsecutiveErrors(t *testing.T) {
	tracker := newTestTracker(testSourceConfig("espn", "primary"))

	for i := 0; i < 3; i++ {
		assert.False(t, tracker.IsOpen("espn"))
		tracker.RecordOutcome("espn", false, 10*time.Millisecond)
	}

	assert.True(t, tracker.IsOpen("espn"))
	assert.Equal(t, types.SourceOffline, tracker.Health("espn"))

	state, exists := tracker.State("espn")
	require.True(t, exists)
	assert.Equal(t, types.CircuitOpen, state.Circuit)
	assert.Equal(t, 3, state.ConsecutiveErrors)
}

func TestTrackerHalfOpenAdmitsExactlyOneTrial(t *testing.T) {
	tracker := newTestTracker(testSourceConfig("espn", "primary"))

	for i := 0; i < 3; i++ {
		tracker.RecordOutcome("espn", false, time.Millisecond)
	}
	require.True(t, tracker.IsOpen("espn"))

	time.Sleep(60 * time.Millisecond)

	assert.False(t, tracker.IsOpen("espn"), "first caller after recovery timeout gets the trial")
	assert.True(t, tracker.IsOpen("espn"), "second caller must wait for the trial outcome")
}

func TestTrackerTrialSuccessClosesCircuit(t *testing.T) {
	tracker := newTestTracker(testSourceConfig("espn", "primary"))

	for i := 0; i < 3; i++ {
		tracker.RecordOutcome("espn", false, time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)
	require.False(t, tracker.IsOpen("espn"))

	tracker.RecordOutcome("espn", true, time.Millisecond)

	assert.False(t, tracker.IsOpen("espn"))
	state, _ := tracker.State("espn")
	assert.Equal(t, types.CircuitClosed, state.Circuit)
}

func TestTrackerTrialFailureReopensCircuit(t *testing.T) {
	tracker := newTestTracker(testSourceConfig("espn", "primary"))

	for i := 0; i < 3; i++ {
		tracker.RecordOutcome("espn", false, time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)
	require.False(t, tracker.IsOpen("espn"))

	tracker.RecordOutcome("espn", false, time.Millisecond)

	assert.True(t, tracker.IsOpen("espn"))
	state, _ := tracker.State("espn")
	assert.Equal(t, types.CircuitOpen, state.Circuit)
}

func TestTrackerHealthClassification(t *testing.T) {
	tracker := newTestTracker(testSourceConfig("espn", "primary"))

	// Below the minimum sample everything reads healthy.
	tracker.RecordOutcome("espn", false, time.Millisecond)
	tracker.RecordOutcome("espn", true, time.Millisecond)
	assert.Equal(t, types.SourceHealthy, tracker.Health("espn"))

	// 6 successes, 4 failures interleaved so no error streak opens the
	// circuit: 60% success rate sits between the thresholds.
	tracker = newTestTracker(testSourceConfig("espn", "primary"))
	outcomes := []bool{true, false, true, false, true, false, true, false, true, true}
	for _, success := range outcomes {
		tracker.RecordOutcome("espn", success, time.Millisecond)
	}
	assert.Equal(t, types.SourceDegraded, tracker.Health("espn"))
}

func TestTrackerUnknownSourceDefaultsHealthy(t *testing.T) {
	tracker := newTestTracker()

	assert.Equal(t, types.SourceHealthy, tracker.Health("nobody"))
	assert.False(t, tracker.IsOpen("nobody"))
}

func TestTrackerTransitionNotificationsFireOnce(t *testing.T) {
	recorder := &transitionRecorder{}
	tracker := newTestTracker(testSourceConfig("espn", "primary"))
	tracker.AddSink(recorder)

	for i := 0; i < 3; i++ {
		tracker.RecordOutcome("espn", false, time.Millisecond)
	}
	// Further failures while already offline must not re-notify.
	state, _ := tracker.State("espn")
	require.Equal(t, types.CircuitOpen, state.Circuit)

	require.Len(t, recorder.transitions, 1)
	assert.Equal(t, "espn:offline", recorder.transitions[0])
}

func TestTrackerSnapshotSorted(t *testing.T) {
	tracker := newTestTracker(
		testSourceConfig("espn", "primary"),
		testSourceConfig("balldontlie", "secondary"),
	)

	tracker.RecordOutcome("espn", true, 20*time.Millisecond)
	tracker.RecordOutcome("balldontlie", true, 10*time.Millisecond)

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "balldontlie", snapshot[0].Source)
	assert.Equal(t, "espn", snapshot[1].Source)
	assert.Equal(t, int64(1), snapshot[1].SuccessCount)
	assert.Equal(t, 20*time.Millisecond, snapshot[1].AvgResponseTime)
}
