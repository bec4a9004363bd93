package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Server      *ServerConfig      `yaml:"server" json:"server"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Cache       *CacheConfig       `yaml:"cache" json:"cache"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
	Middlewares *MiddlewaresConfig `yaml:"middlewares" json:"middlewares"`
	RateLimit   *RateLimitConfig   `yaml:"rate_limit" json:"rate_limit"`
	Sources     []*SourceConfig    `yaml:"sources" json:"sources" validate:"dive"`
	Fetch       *FetchConfig       `yaml:"fetch" json:"fetch"`
	Live        *LiveConfig        `yaml:"live" json:"live"`
	Alerts      *AlertsConfig      `yaml:"alerts" json:"alerts"`
	Records     *RecordsConfig     `yaml:"records" json:"records"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http"`
}

type HTTPConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
	File   string `yaml:"file" json:"file"`
}

type CacheConfig struct {
	Enabled    bool                `yaml:"enabled" json:"enabled"`
	Namespace  string              `yaml:"namespace" json:"namespace"`
	DefaultTTL time.Duration       `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	Redis      *RedisConfig        `yaml:"redis" json:"redis"`
	Memory     *MemoryCacheConfig  `yaml:"memory" json:"memory"`
	Monitor    *CacheMonitorConfig `yaml:"monitor" json:"monitor"`
}

type RedisConfig struct {
	Host               string        `yaml:"host" json:"host"`
	Port               int           `yaml:"port" json:"port"`
	Password           string        `yaml:"password" json:"password"`
	DB                 int           `yaml:"db" json:"db"`
	PoolSize           int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConnections int           `yaml:"min_idle_connections" json:"min_idle_connections"`
	DialTimeout        time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout        time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout" json:"write_timeout"`
	KeyPrefix          string        `yaml:"key_prefix" json:"key_prefix"`
}

type MemoryCacheConfig struct {
	MaxEntries    int           `yaml:"max_entries" json:"max_entries" validate:"min=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

type CacheMonitorConfig struct {
	WindowSize        int     `yaml:"window_size" json:"window_size" validate:"min=0"`
	MaxErrorRate      float64 `yaml:"max_error_rate" json:"max_error_rate" validate:"min=0,max=1"`
	MinRequests       int     `yaml:"min_requests" json:"min_requests" validate:"min=0"`
	MinHitRate        float64 `yaml:"min_hit_rate" json:"min_hit_rate" validate:"min=0,max=1"`
	CapacityHighWater float64 `yaml:"capacity_high_water" json:"capacity_high_water" validate:"min=0,max=1"`
	MaxPrimaryErrors  int     `yaml:"max_primary_errors" json:"max_primary_errors" validate:"min=0"`
}

type SourceConfig struct {
	Name                 string        `yaml:"name" json:"name" validate:"required"`
	BaseURL              string        `yaml:"base_url" json:"base_url" validate:"required,url"`
	APIKey               string        `yaml:"api_key" json:"api_key"`
	APIKeyHeader         string        `yaml:"api_key_header" json:"api_key_header"`
	Tier                 string        `yaml:"tier" json:"tier" validate:"required,oneof=primary secondary fallback emergency"`
	Timeout              time.Duration `yaml:"timeout" json:"timeout"`
	DataTypes            []string      `yaml:"data_types" json:"data_types" validate:"min=1"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors" json:"max_consecutive_errors" validate:"min=0,max=10"`
	RecoveryTimeout      time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	UnhealthyThreshold   float64       `yaml:"unhealthy_threshold" json:"unhealthy_threshold" validate:"min=0,max=1"`
	DegradedThreshold    float64       `yaml:"degraded_threshold" json:"degraded_threshold" validate:"min=0,max=1"`
	Retry                *RetryConfig  `yaml:"retry" json:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts" validate:"min=1"`
	BaseDelay       time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay" json:"max_delay"`
	ExponentialBase float64       `yaml:"exponential_base" json:"exponential_base"`
	Jitter          bool          `yaml:"jitter" json:"jitter"`
}

type FetchConfig struct {
	DefaultTTL     time.Duration            `yaml:"default_ttl" json:"default_ttl"`
	TTLByDataType  map[string]time.Duration `yaml:"ttl_by_data_type" json:"ttl_by_data_type"`
	StaleRetention time.Duration            `yaml:"stale_retention" json:"stale_retention"`
}

type RateLimitConfig struct {
	Enabled bool             `yaml:"enabled" json:"enabled"`
	Weight  int              `yaml:"weight" json:"weight" validate:"min=0"`
	Store   string           `yaml:"store" json:"store" validate:"omitempty,oneof=redis memory"`
	Rules   []*RateLimitRule `yaml:"rules" json:"rules" validate:"dive"`
}

type RateLimitRule struct {
	Name          string   `yaml:"name" json:"name" validate:"required"`
	Algorithm     string   `yaml:"algorithm" json:"algorithm" validate:"required,oneof=fixed_window sliding_window token_bucket leaky_bucket"`
	Requests      int      `yaml:"requests" json:"requests" validate:"min=1"`
	WindowSeconds int      `yaml:"window_seconds" json:"window_seconds" validate:"min=1"`
	Burst         int      `yaml:"burst" json:"burst" validate:"min=0"`
	Scope         string   `yaml:"scope" json:"scope" validate:"required,oneof=global ip api_key endpoint"`
	Priority      int      `yaml:"priority" json:"priority"`
	Endpoints     []string `yaml:"endpoints" json:"endpoints"`
}

type MiddlewaresConfig struct {
	Enabled     bool               `yaml:"enabled" json:"enabled"`
	Recovery    *MiddlewareConfig  `yaml:"recovery" json:"recovery"`
	Logging     *MiddlewareConfig  `yaml:"logging" json:"logging"`
	CORS        *CORSConfig        `yaml:"cors" json:"cors"`
	BodyLimit   *BodyLimitConfig   `yaml:"body_limit" json:"body_limit"`
	Compression *CompressionConfig `yaml:"compression" json:"compression"`
}

type MiddlewareConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Weight  int  `yaml:"weight" json:"weight" validate:"min=0"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	Weight         int      `yaml:"weight" json:"weight" validate:"min=0"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

type BodyLimitConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Weight  int  `yaml:"weight" json:"weight" validate:"min=0"`
	MaxSize int  `yaml:"max_size" json:"max_size" validate:"min=0"`
}

type CompressionConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Weight  int  `yaml:"weight" json:"weight" validate:"min=0"`
	Level   int  `yaml:"level" json:"level" validate:"min=0,max=11"`
	MinSize int  `yaml:"min_size" json:"min_size" validate:"min=0"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Type    string `yaml:"type" json:"type" validate:"required_if=Enabled true,omitempty,oneof=prometheus memory"`
	Prefix  string `yaml:"prefix" json:"prefix"`
	Path    string `yaml:"path" json:"path"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type LiveConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Host         string        `yaml:"host" json:"host"`
	Port         int           `yaml:"port" json:"port" validate:"required_if=Enabled true,omitempty,min=1,max=65535"`
	Path         string        `yaml:"path" json:"path"`
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`
	PongWait     time.Duration `yaml:"pong_wait" json:"pong_wait"`
	WriteWait    time.Duration `yaml:"write_wait" json:"write_wait"`
	SendBuffer   int           `yaml:"send_buffer" json:"send_buffer" validate:"min=0"`
}

type AlertsConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	DBPath     string        `yaml:"db_path" json:"db_path"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries" validate:"min=0"`
}

type RecordsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path" validate:"required_if=Enabled true"`
	MaxRecords int    `yaml:"max_records" json:"max_records" validate:"min=0"`
}

type CronConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Timezone string `yaml:"timezone" json:"timezone"`
}
