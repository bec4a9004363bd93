package records

import (
	"context"
	"fmt"
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

func newTestManager(t *testing.T, maxRecords int) *Manager {
	t.Helper()

	manager, err := NewManager(&nopLogger{}, &types.RecordsConfig{
		Enabled:    true,
		Path:       t.TempDir(),
		MaxRecords: maxRecords,
	})
	require.NoError(t, err)
	require.NoError(t, manager.Start())
	t.Cleanup(func() { _ = manager.Stop() })

	return manager
}

func TestRecordFetchAndRecentFetches(t *testing.T) {
	manager := newTestManager(t, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, manager.RecordFetch(ctx, &types.FetchRecord{
			DataType:  types.DataTypeOdds,
			Endpoint:  "/v4/odds",
			Source:    fmt.Sprintf("source-%d", i),
			Success:   true,
			Duration:  120 * time.Millisecond,
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := manager.RecentFetches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "source-2", records[0].Source)
	assert.Equal(t, "source-1", records[1].Source)
	assert.NotEmpty(t, records[0].ID)
	assert.Equal(t, 120*time.Millisecond, records[0].Duration)
}

func TestRecordSnapshotFiltersBySource(t *testing.T) {
	manager := newTestManager(t, 0)
	ctx := context.Background()

	require.NoError(t, manager.RecordSnapshot(ctx, []types.SourceHealthState{
		{Source: "espn", Health: types.SourceHealthy, TotalRequests: 10},
		{Source: "sportsradar", Health: types.SourceDegraded, TotalRequests: 7},
	}))

	states, err := manager.RecentSnapshots(ctx, "espn", 10)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "espn", states[0].Source)
	assert.Equal(t, types.SourceHealthy, states[0].Health)

	all, err := manager.RecentSnapshots(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPruneTrimsOldestFirst(t *testing.T) {
	manager := newTestManager(t, 5)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 8; i++ {
		require.NoError(t, manager.RecordFetch(ctx, &types.FetchRecord{
			DataType:  types.DataTypeScores,
			Source:    fmt.Sprintf("source-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	pruned, err := manager.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)

	records, err := manager.RecentFetches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 5)

	for _, record := range records {
		assert.NotContains(t, []string{"source-0", "source-1", "source-2"}, record.Source)
	}
}

func TestPruneNoopUnderCeiling(t *testing.T) {
	manager := newTestManager(t, 100)

	require.NoError(t, manager.RecordFetch(context.Background(), &types.FetchRecord{
		DataType: types.DataTypeOdds,
	}))

	pruned, err := manager.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestManagerDisabled(t *testing.T) {
	_, err := NewManager(&nopLogger{}, &types.RecordsConfig{Enabled: false})
	assert.ErrorIs(t, err, types.ErrRecordsDisabled)
}

func TestManagerRequiresPath(t *testing.T) {
	_, err := NewManager(&nopLogger{}, &types.RecordsConfig{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "records path")
}

func TestManagerRequiresRunning(t *testing.T) {
	manager, err := NewManager(&nopLogger{}, &types.RecordsConfig{Enabled: true, Path: t.TempDir()})
	require.NoError(t, err)

	assert.ErrorIs(t, manager.RecordFetch(context.Background(), &types.FetchRecord{}), types.ErrRecordsDisabled)

	_, err = manager.RecentFetches(context.Background(), 10)
	assert.ErrorIs(t, err, types.ErrRecordsDisabled)
}
