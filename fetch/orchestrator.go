package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
	"github.com/gridironlabs/gridfeed/utils"
)

// Orchestrator drives the full fetch flow: rate-limited callers hand it a
// logical data type and it works through cache, ranked sources and stale
// fallback. It never returns an error; degradation is reported through the
// result's notifications.
type Orchestrator struct {
	logger    types.Logger
	config    *types.FetchConfig
	namespace string
	cache     types.CacheStore
	monitor   types.CacheMonitor
	router    types.SourceRouter
	executor  *Executor
	caller    types.SourceCaller
	records   types.RecordsManager
	live      types.LiveHub
	metrics   types.MetricsManager
}

type OrchestratorOptions struct {
	Logger    types.Logger
	Config    *types.FetchConfig
	Namespace string
	Cache     types.CacheStore
	Monitor   types.CacheMonitor
	Router    types.SourceRouter
	Executor  *Executor
	Caller    types.SourceCaller

	// Optional side channels.
	Records types.RecordsManager
	Live    types.LiveHub
	Metrics types.MetricsManager
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "gridfeed"
	}

	return &Orchestrator{
		logger:    opts.Logger,
		config:    opts.Config,
		namespace: namespace,
		cache:     opts.Cache,
		monitor:   opts.Monitor,
		router:    opts.Router,
		executor:  opts.Executor,
		caller:    opts.Caller,
		records:   opts.Records,
		live:      opts.Live,
		metrics:   opts.Metrics,
	}
}

// Fetch always returns a result object. Empty params is valid; a data type
// with no capable sources falls straight through to the stale/terminal path.
func (o *Orchestrator) Fetch(ctx context.Context, dataType, endpoint string, params map[string]string) *types.FetchResult {
	start := time.Now()
	key := o.cacheKey(dataType, endpoint, params)

	if o.monitor.ShouldUseCache() {
		if value, ok := o.cache.Get(ctx, key); ok {
			result := &types.FetchResult{
				Data:      value.Value,
				Source:    value.SourceTag,
				Cached:    true,
				Timestamp: time.Now(),
				Notifications: []types.Notification{{
					Type:    types.NotificationInfo,
					Message: fmt.Sprintf("cached data, age %s", value.Age.Round(time.Second)),
					Source:  value.SourceTag,
				}},
			}
			o.archive(ctx, dataType, endpoint, value.SourceTag, true, true, time.Since(start))
			return result
		}
	}

	candidates := o.router.Rank(dataType)
	var notifications []types.Notification

	for i, source := range candidates {
		data, err := o.executor.Execute(ctx, source, func(ctx context.Context) (interface{}, error) {
			return o.caller.Call(ctx, source, endpoint, params)
		})
		if err != nil {
			o.logger.Warn("source exhausted, advancing to next candidate",
				zap.String("data_type", dataType),
				zap.String("source", source.Name),
				zap.Error(err))
			o.recordSourceMetric(dataType, source.Name, "error")
			continue
		}

		if err := o.cache.Set(ctx, key, data, source.Name, o.ttlFor(dataType)); err != nil {
			o.logger.Error("failed to cache fetched data",
				zap.String("key", key), zap.Error(err))
		}

		if i > 0 {
			notifications = append(notifications, types.Notification{
				Type:      types.NotificationWarning,
				Message:   fmt.Sprintf("using backup source %s", source.Name),
				Source:    source.Name,
				Retryable: false,
			})
		}

		o.recordSourceMetric(dataType, source.Name, "success")
		o.archive(ctx, dataType, endpoint, source.Name, false, true, time.Since(start))
		o.publish(dataType, endpoint, source.Name, false)

		return &types.FetchResult{
			Data:          data,
			Source:        source.Name,
			Cached:        false,
			Timestamp:     time.Now(),
			Notifications: notifications,
		}
	}

	// All candidates exhausted (or none existed): any retained cache value,
	// however old, beats nothing.
	if value, ok := o.cache.GetStale(ctx, key); ok {
		notifications = append(notifications, types.Notification{
			Type:      types.NotificationWarning,
			Message:   fmt.Sprintf("stale data, APIs unavailable, age %s", value.Age.Round(time.Second)),
			Source:    value.SourceTag,
			Retryable: true,
		})
		o.archive(ctx, dataType, endpoint, value.SourceTag, true, true, time.Since(start))
		return &types.FetchResult{
			Data:          value.Value,
			Source:        value.SourceTag,
			Cached:        true,
			Timestamp:     time.Now(),
			Notifications: notifications,
		}
	}

	notifications = append(notifications, types.Notification{
		Type:      types.NotificationError,
		Message:   fmt.Sprintf("no data available for %s, all sources failed", dataType),
		Source:    "none",
		Retryable: true,
	})
	o.recordSourceMetric(dataType, "none", "exhausted")
	o.archive(ctx, dataType, endpoint, "none", false, false, time.Since(start))

	return &types.FetchResult{
		Data:          nil,
		Source:        "none",
		Cached:        false,
		Timestamp:     time.Now(),
		Notifications: notifications,
	}
}

func (o *Orchestrator) cacheKey(dataType, endpoint string, params map[string]string) string {
	merged := make(map[string]string, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged["endpoint"] = endpoint
	return utils.BuildCacheKey(o.namespace, dataType, merged)
}

func (o *Orchestrator) ttlFor(dataType string) time.Duration {
	if o.config != nil {
		if ttl, ok := o.config.TTLByDataType[dataType]; ok {
			return ttl
		}
		if o.config.DefaultTTL > 0 {
			return o.config.DefaultTTL
		}
	}
	return 5 * time.Minute
}

func (o *Orchestrator) archive(ctx context.Context, dataType, endpoint, source string, cached, success bool, duration time.Duration) {
	if o.records == nil {
		return
	}

	record := &types.FetchRecord{
		ID:        uuid.NewString(),
		DataType:  dataType,
		Endpoint:  endpoint,
		Source:    source,
		Cached:    cached,
		Success:   success,
		Duration:  duration,
		Timestamp: time.Now(),
	}

	if err := o.records.RecordFetch(ctx, record); err != nil {
		o.logger.Debug("failed to archive fetch record", zap.Error(err))
	}
}

func (o *Orchestrator) publish(dataType, endpoint, source string, cached bool) {
	if o.live == nil {
		return
	}

	err := o.live.Publish(dataType, "update", map[string]interface{}{
		"endpoint": endpoint,
		"source":   source,
		"cached":   cached,
	})
	if err != nil && !types.IsError(err, types.ErrHubNotRunning) {
		o.logger.Debug("failed to publish live update", zap.Error(err))
	}
}

func (o *Orchestrator) recordSourceMetric(dataType, source, result string) {
	if o.metrics == nil {
		return
	}

	o.metrics.Counter("fetch_attempts_total", map[string]string{
		"data_type": dataType,
		"source":    source,
		"result":    result,
	}).Inc()
}
