package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/gridironlabs/gridfeed/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// LoadFromFile reads YAML, expands ${ENV} references (API keys and the Redis
// password arrive this way), applies defaults and validates the result.
func (l *Loader) LoadFromFile(configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	config := Defaults()

	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	})

	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, types.WrapError(err, "failed to parse YAML config")
	}

	applySourceDefaults(config)

	if err := l.validator.Struct(config); err != nil {
		return nil, types.WrapError(err, "config validation failed")
	}

	return config, nil
}

func Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "gridfeed",
		Version: "dev",
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:            "0.0.0.0",
				Port:            8080,
				ReadTimeout:     30,
				WriteTimeout:    30,
				IdleTimeout:     120,
				ShutdownTimeout: 10,
			},
		},
		Logger: &types.LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Cache: &types.CacheConfig{
			Enabled:    true,
			Namespace:  "gridfeed",
			DefaultTTL: 15 * time.Minute,
			Redis: &types.RedisConfig{
				Host:               "localhost",
				Port:               6379,
				DB:                 0,
				PoolSize:           10,
				MinIdleConnections: 2,
				DialTimeout:        5 * time.Second,
				ReadTimeout:        3 * time.Second,
				WriteTimeout:       3 * time.Second,
				KeyPrefix:          "gridfeed",
			},
			Memory: &types.MemoryCacheConfig{
				MaxEntries:    10000,
				SweepInterval: 5 * time.Minute,
			},
			Monitor: &types.CacheMonitorConfig{
				WindowSize:        1000,
				MaxErrorRate:      0.20,
				MinRequests:       100,
				MinHitRate:        0.10,
				CapacityHighWater: 0.90,
				MaxPrimaryErrors:  3,
			},
		},
		Metrics: &types.MetricsConfig{
			Enabled: true,
			Type:    "prometheus",
			Prefix:  "gridfeed",
			Path:    "/metrics",
		},
		Health: &types.HealthConfig{Enabled: true},
		Middlewares: &types.MiddlewaresConfig{
			Enabled:  true,
			Recovery: &types.MiddlewareConfig{Enabled: true, Weight: 10},
			Logging:  &types.MiddlewareConfig{Enabled: true, Weight: 20},
			CORS: &types.CORSConfig{
				Enabled:        true,
				Weight:         30,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-API-Key"},
			},
			BodyLimit:   &types.BodyLimitConfig{Enabled: true, Weight: 40, MaxSize: 1 << 20},
			Compression: &types.CompressionConfig{Enabled: true, Weight: 90, Level: 4, MinSize: 1024},
		},
		RateLimit: &types.RateLimitConfig{
			Enabled: true,
			Weight:  50,
			Store:   "redis",
			Rules: []*types.RateLimitRule{
				{
					Name:          "global",
					Algorithm:     "token_bucket",
					Requests:      1000,
					WindowSeconds: 60,
					Burst:         100,
					Scope:         "global",
					Priority:      100,
				},
				{
					Name:          "per-ip",
					Algorithm:     "sliding_window",
					Requests:      120,
					WindowSeconds: 60,
					Scope:         "ip",
					Priority:      50,
				},
			},
		},
		Fetch: &types.FetchConfig{
			DefaultTTL:     15 * time.Minute,
			StaleRetention: 24 * time.Hour,
		},
		Live: &types.LiveConfig{
			Enabled:      false,
			Host:         "0.0.0.0",
			Port:         8081,
			Path:         "/live",
			PingInterval: 54 * time.Second,
			PongWait:     60 * time.Second,
			WriteWait:    10 * time.Second,
			SendBuffer:   64,
		},
		Alerts: &types.AlertsConfig{
			Enabled:    false,
			DBPath:     "./data/webhooks.db",
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Records: &types.RecordsConfig{
			Enabled:    false,
			Path:       "./data/records",
			MaxRecords: 50000,
		},
		Cron: &types.CronConfig{
			Enabled:  true,
			Timezone: "UTC",
		},
	}
}

func applySourceDefaults(config *types.ServiceConfig) {
	for _, source := range config.Sources {
		if source.Timeout <= 0 {
			source.Timeout = 30 * time.Second
		}
		if source.MaxConsecutiveErrors <= 0 {
			source.MaxConsecutiveErrors = 3
		}
		if source.RecoveryTimeout <= 0 {
			source.RecoveryTimeout = 60 * time.Second
		}
		if source.UnhealthyThreshold <= 0 {
			source.UnhealthyThreshold = 0.50
		}
		if source.DegradedThreshold <= 0 {
			source.DegradedThreshold = 0.75
		}
		if source.APIKeyHeader == "" {
			source.APIKeyHeader = "X-API-Key"
		}
		if source.Retry == nil {
			source.Retry = &types.RetryConfig{}
		}
		if source.Retry.MaxAttempts <= 0 {
			source.Retry.MaxAttempts = 3
		}
		if source.Retry.BaseDelay <= 0 {
			source.Retry.BaseDelay = 500 * time.Millisecond
		}
		if source.Retry.MaxDelay <= 0 {
			source.Retry.MaxDelay = 30 * time.Second
		}
		if source.Retry.ExponentialBase <= 1 {
			source.Retry.ExponentialBase = 2.0
		}
	}
}
