package types

import (
	"context"
	"time"
)

const (
	NotificationInfo    = "info"
	NotificationWarning = "warning"
	NotificationError   = "error"
)

// Notification records degradation visible to API consumers: cache hits with
// age, backup-source use, stale fallback, full outage.
type Notification struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Source    string `json:"source"`
	Retryable bool   `json:"retryable"`
}

// FetchResult is always returned, never an error: failure is signaled through
// Notifications so API layers can render soft warnings.
type FetchResult struct {
	Data          interface{}    `json:"data"`
	Source        string         `json:"source"`
	Cached        bool           `json:"cached"`
	Timestamp     time.Time      `json:"timestamp"`
	Notifications []Notification `json:"notifications,omitempty"`
}

type FetchOrchestrator interface {
	Fetch(ctx context.Context, dataType, endpoint string, params map[string]string) *FetchResult
}

// SourceCaller performs exactly one classified attempt against one source.
// Errors are taxonomy variants (ErrNetwork, ErrRateLimited, ...), never raw
// transport errors.
type SourceCaller interface {
	Call(ctx context.Context, source *SourceConfig, endpoint string, params map[string]string) (interface{}, error)
}

// FetchRecord is an archived fetch outcome kept for the admin read API.
type FetchRecord struct {
	ID        string        `json:"id"`
	DataType  string        `json:"data_type"`
	Endpoint  string        `json:"endpoint"`
	Source    string        `json:"source"`
	Cached    bool          `json:"cached"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

type RecordsManager interface {
	LifecycleManager
	RecordFetch(ctx context.Context, record *FetchRecord) error
	RecordSnapshot(ctx context.Context, states []SourceHealthState) error
	RecentFetches(ctx context.Context, limit int) ([]*FetchRecord, error)
	RecentSnapshots(ctx context.Context, source string, limit int) ([]SourceHealthState, error)
	Prune(ctx context.Context) (int, error)
}
