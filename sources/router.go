package sources

import (
	"sort"

	"github.com/gridironlabs/gridfeed/types"
)

// Router ranks configured sources for a logical data type. The capability
// table is static configuration; only health varies between calls.
type Router struct {
	byDataType map[string][]*types.SourceConfig
	tracker    types.SourceTracker
}

func NewRouter(configs []*types.SourceConfig, tracker types.SourceTracker) *Router {
	byDataType := make(map[string][]*types.SourceConfig)
	for _, config := range configs {
		for _, dataType := range config.DataTypes {
			byDataType[dataType] = append(byDataType[dataType], config)
		}
	}

	return &Router{
		byDataType: byDataType,
		tracker:    tracker,
	}
}

// Rank returns the sources capable of serving dataType, best first. Offline
// sources are excluded entirely. Score is tier*10 + health score; ties keep
// declaration order.
func (r *Router) Rank(dataType string) []*types.SourceConfig {
	capable := r.byDataType[dataType]
	if len(capable) == 0 {
		return nil
	}

	type scored struct {
		config *types.SourceConfig
		score  int
		order  int
	}

	candidates := make([]scored, 0, len(capable))
	for order, config := range capable {
		health := r.tracker.Health(config.Name)
		if health == types.SourceOffline {
			continue
		}

		candidates = append(candidates, scored{
			config: config,
			score:  types.TierValue(config.Tier)*10 + types.HealthScore(health),
			order:  order,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	ranked := make([]*types.SourceConfig, len(candidates))
	for i, candidate := range candidates {
		ranked[i] = candidate.config
	}
	return ranked
}

// Capable reports whether any source is configured for the data type,
// regardless of health.
func (r *Router) Capable(dataType string) bool {
	return len(r.byDataType[dataType]) > 0
}

// DataTypes lists every data type at least one source can serve.
func (r *Router) DataTypes() []string {
	dataTypes := make([]string, 0, len(r.byDataType))
	for dataType := range r.byDataType {
		dataTypes = append(dataTypes, dataType)
	}
	sort.Strings(dataTypes)
	return dataTypes
}
