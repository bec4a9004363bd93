package metrics

import (
	"context"

	"github.com/gridironlabs/gridfeed/types"
)

func NewManager(ctx context.Context, logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrMetricsIsDisabled
	}

	switch config.Type {
	case "prometheus":
		return NewPrometheusMetrics(ctx, logger, config)
	case "memory":
		return NewMemoryMetrics(ctx, logger, config)
	default:
		return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", config.Type)
	}
}
