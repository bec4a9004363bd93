package records

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
)

const (
	fetchCollection    = "fetches"
	snapshotCollection = "snapshots"

	defaultMaxRecords = 10000
)

// Manager archives fetch outcomes and source-health snapshots in CloverDB
// for the admin read API. Prune trims both collections oldest-first down to
// the configured ceiling.
type Manager struct {
	logger types.Logger
	config *types.RecordsConfig

	db         *clover.DB
	mu         sync.Mutex
	state      int32
	maxRecords int
}

func NewManager(logger types.Logger, config *types.RecordsConfig) (*Manager, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrRecordsDisabled
	}
	if config.Path == "" {
		return nil, types.NewErrorf("records path is not configured")
	}

	db, err := clover.Open(config.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open records database")
	}

	maxRecords := config.MaxRecords
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}

	manager := &Manager{
		logger:     logger,
		config:     config,
		db:         db,
		maxRecords: maxRecords,
	}

	for _, collection := range []string{fetchCollection, snapshotCollection} {
		if err := manager.ensureCollection(collection); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return manager, nil
}

func (m *Manager) ensureCollection(name string) error {
	exists, err := m.db.HasCollection(name)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}
	if exists {
		return nil
	}
	if err := m.db.CreateCollection(name); err != nil {
		return types.WrapError(err, "failed to create collection")
	}
	return nil
}

func (m *Manager) Start() error {
	if !atomic.CompareAndSwapInt32(&m.state, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	m.logger.Info("records manager started", zap.String("path", m.config.Path))
	return nil
}

func (m *Manager) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.state, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := m.db.Close(); err != nil {
		return types.WrapError(err, "failed to close records database")
	}

	m.logger.Info("records manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return atomic.LoadInt32(&m.state) == 1
}

func (m *Manager) RecordFetch(ctx context.Context, record *types.FetchRecord) error {
	if !m.IsRunning() {
		return types.ErrRecordsDisabled
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	doc := clover.NewDocument()
	doc.Set("record_id", record.ID)
	doc.Set("data_type", record.DataType)
	doc.Set("endpoint", record.Endpoint)
	doc.Set("source", record.Source)
	doc.Set("cached", record.Cached)
	doc.Set("success", record.Success)
	doc.Set("duration_ns", int64(record.Duration))
	doc.Set("timestamp", record.Timestamp.UnixNano())

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.Insert(fetchCollection, doc); err != nil {
		return types.WrapError(err, "failed to insert fetch record")
	}
	return nil
}

func (m *Manager) RecordSnapshot(ctx context.Context, states []types.SourceHealthState) error {
	if !m.IsRunning() {
		return types.ErrRecordsDisabled
	}

	now := time.Now().UTC().UnixNano()
	docs := make([]*clover.Document, 0, len(states))

	for _, state := range states {
		doc := clover.NewDocument()
		doc.Set("source", state.Source)
		doc.Set("success_count", state.SuccessCount)
		doc.Set("error_count", state.ErrorCount)
		doc.Set("total_requests", state.TotalRequests)
		doc.Set("consecutive_errors", int64(state.ConsecutiveErrors))
		doc.Set("avg_response_time_ns", int64(state.AvgResponseTime))
		doc.Set("circuit", state.Circuit.String())
		doc.Set("health", string(state.Health))
		doc.Set("timestamp", now)
		docs = append(docs, doc)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.Insert(snapshotCollection, docs...); err != nil {
		return types.WrapError(err, "failed to insert health snapshot")
	}
	return nil
}

func (m *Manager) RecentFetches(ctx context.Context, limit int) ([]*types.FetchRecord, error) {
	if !m.IsRunning() {
		return nil, types.ErrRecordsDisabled
	}
	if limit <= 0 {
		limit = 50
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs, err := m.db.Query(fetchCollection).
		Sort(clover.SortOption{Field: "timestamp", Direction: -1}).
		Limit(limit).
		FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to query fetch records")
	}

	records := make([]*types.FetchRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, &types.FetchRecord{
			ID:        asString(doc.Get("record_id")),
			DataType:  asString(doc.Get("data_type")),
			Endpoint:  asString(doc.Get("endpoint")),
			Source:    asString(doc.Get("source")),
			Cached:    asBool(doc.Get("cached")),
			Success:   asBool(doc.Get("success")),
			Duration:  time.Duration(asInt64(doc.Get("duration_ns"))),
			Timestamp: time.Unix(0, asInt64(doc.Get("timestamp"))).UTC(),
		})
	}

	return records, nil
}

func (m *Manager) RecentSnapshots(ctx context.Context, source string, limit int) ([]types.SourceHealthState, error) {
	if !m.IsRunning() {
		return nil, types.ErrRecordsDisabled
	}
	if limit <= 0 {
		limit = 50
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	query := m.db.Query(snapshotCollection)
	if source != "" {
		query = query.Where(clover.Field("source").Eq(source))
	}

	docs, err := query.
		Sort(clover.SortOption{Field: "timestamp", Direction: -1}).
		Limit(limit).
		FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to query health snapshots")
	}

	states := make([]types.SourceHealthState, 0, len(docs))
	for _, doc := range docs {
		states = append(states, types.SourceHealthState{
			Source:            asString(doc.Get("source")),
			SuccessCount:      asInt64(doc.Get("success_count")),
			ErrorCount:        asInt64(doc.Get("error_count")),
			TotalRequests:     asInt64(doc.Get("total_requests")),
			ConsecutiveErrors: int(asInt64(doc.Get("consecutive_errors"))),
			AvgResponseTime:   time.Duration(asInt64(doc.Get("avg_response_time_ns"))),
			Health:            types.SourceHealth(asString(doc.Get("health"))),
		})
	}

	return states, nil
}

// Prune removes the oldest documents beyond the configured ceiling and
// returns how many were deleted.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	if !m.IsRunning() {
		return 0, types.ErrRecordsDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for _, collection := range []string{fetchCollection, snapshotCollection} {
		removed, err := m.pruneCollection(collection)
		if err != nil {
			return pruned, err
		}
		pruned += removed
	}

	if pruned > 0 {
		m.logger.Info("records pruned", zap.Int("count", pruned))
	}
	return pruned, nil
}

func (m *Manager) pruneCollection(collection string) (int, error) {
	count, err := m.db.Query(collection).Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count records")
	}
	if count <= m.maxRecords {
		return 0, nil
	}

	excess := count - m.maxRecords
	docs, err := m.db.Query(collection).
		Sort(clover.SortOption{Field: "timestamp", Direction: 1}).
		Limit(excess).
		FindAll()
	if err != nil {
		return 0, types.WrapError(err, "failed to find prune candidates")
	}

	removed := 0
	for _, doc := range docs {
		if err := m.db.Query(collection).DeleteById(doc.ObjectId()); err != nil {
			return removed, types.WrapError(err, "failed to delete record")
		}
		removed++
	}

	return removed, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
