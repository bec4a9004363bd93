package types

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Durations in YAML arrive as Go duration strings ("15m", "500ms"). The
// custom decoders below parse them and leave pre-set defaults untouched when
// a field is absent.

func parseYAMLDuration(raw string, target *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return Errorf(ErrConfigParseFailed, "invalid duration %q", raw)
	}
	*target = d
	return nil
}

func (c *CacheConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Enabled    *bool               `yaml:"enabled"`
		Namespace  string              `yaml:"namespace"`
		DefaultTTL string              `yaml:"default_ttl"`
		Redis      *RedisConfig        `yaml:"redis"`
		Memory     *MemoryCacheConfig  `yaml:"memory"`
		Monitor    *CacheMonitorConfig `yaml:"monitor"`
	}
	raw.Redis = c.Redis
	raw.Memory = c.Memory
	raw.Monitor = c.Monitor

	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.Namespace != "" {
		c.Namespace = raw.Namespace
	}
	c.Redis = raw.Redis
	c.Memory = raw.Memory
	c.Monitor = raw.Monitor
	return parseYAMLDuration(raw.DefaultTTL, &c.DefaultTTL)
}

func (c *RedisConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Password           string `yaml:"password"`
		DB                 *int   `yaml:"db"`
		PoolSize           int    `yaml:"pool_size"`
		MinIdleConnections int    `yaml:"min_idle_connections"`
		DialTimeout        string `yaml:"dial_timeout"`
		ReadTimeout        string `yaml:"read_timeout"`
		WriteTimeout       string `yaml:"write_timeout"`
		KeyPrefix          string `yaml:"key_prefix"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Host != "" {
		c.Host = raw.Host
	}
	if raw.Port != 0 {
		c.Port = raw.Port
	}
	if raw.Password != "" {
		c.Password = raw.Password
	}
	if raw.DB != nil {
		c.DB = *raw.DB
	}
	if raw.PoolSize != 0 {
		c.PoolSize = raw.PoolSize
	}
	if raw.MinIdleConnections != 0 {
		c.MinIdleConnections = raw.MinIdleConnections
	}
	if raw.KeyPrefix != "" {
		c.KeyPrefix = raw.KeyPrefix
	}

	for _, pair := range []struct {
		raw    string
		target *time.Duration
	}{
		{raw.DialTimeout, &c.DialTimeout},
		{raw.ReadTimeout, &c.ReadTimeout},
		{raw.WriteTimeout, &c.WriteTimeout},
	} {
		if err := parseYAMLDuration(pair.raw, pair.target); err != nil {
			return err
		}
	}
	return nil
}

func (c *MemoryCacheConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxEntries    int    `yaml:"max_entries"`
		SweepInterval string `yaml:"sweep_interval"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.MaxEntries != 0 {
		c.MaxEntries = raw.MaxEntries
	}
	return parseYAMLDuration(raw.SweepInterval, &c.SweepInterval)
}

func (c *SourceConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name                 string       `yaml:"name"`
		BaseURL              string       `yaml:"base_url"`
		APIKey               string       `yaml:"api_key"`
		APIKeyHeader         string       `yaml:"api_key_header"`
		Tier                 string       `yaml:"tier"`
		Timeout              string       `yaml:"timeout"`
		DataTypes            []string     `yaml:"data_types"`
		MaxConsecutiveErrors int          `yaml:"max_consecutive_errors"`
		RecoveryTimeout      string       `yaml:"recovery_timeout"`
		UnhealthyThreshold   float64      `yaml:"unhealthy_threshold"`
		DegradedThreshold    float64      `yaml:"degraded_threshold"`
		Retry                *RetryConfig `yaml:"retry"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.Name = raw.Name
	c.BaseURL = raw.BaseURL
	c.APIKey = raw.APIKey
	c.APIKeyHeader = raw.APIKeyHeader
	c.Tier = raw.Tier
	c.DataTypes = raw.DataTypes
	c.MaxConsecutiveErrors = raw.MaxConsecutiveErrors
	c.UnhealthyThreshold = raw.UnhealthyThreshold
	c.DegradedThreshold = raw.DegradedThreshold
	c.Retry = raw.Retry

	if err := parseYAMLDuration(raw.Timeout, &c.Timeout); err != nil {
		return err
	}
	return parseYAMLDuration(raw.RecoveryTimeout, &c.RecoveryTimeout)
}

func (c *RetryConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxAttempts     int     `yaml:"max_attempts"`
		BaseDelay       string  `yaml:"base_delay"`
		MaxDelay        string  `yaml:"max_delay"`
		ExponentialBase float64 `yaml:"exponential_base"`
		Jitter          *bool   `yaml:"jitter"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.MaxAttempts != 0 {
		c.MaxAttempts = raw.MaxAttempts
	}
	if raw.ExponentialBase != 0 {
		c.ExponentialBase = raw.ExponentialBase
	}
	if raw.Jitter != nil {
		c.Jitter = *raw.Jitter
	}

	if err := parseYAMLDuration(raw.BaseDelay, &c.BaseDelay); err != nil {
		return err
	}
	return parseYAMLDuration(raw.MaxDelay, &c.MaxDelay)
}

func (c *FetchConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		DefaultTTL     string            `yaml:"default_ttl"`
		TTLByDataType  map[string]string `yaml:"ttl_by_data_type"`
		StaleRetention string            `yaml:"stale_retention"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if len(raw.TTLByDataType) > 0 {
		c.TTLByDataType = make(map[string]time.Duration, len(raw.TTLByDataType))
		for dataType, value := range raw.TTLByDataType {
			var d time.Duration
			if err := parseYAMLDuration(value, &d); err != nil {
				return err
			}
			c.TTLByDataType[dataType] = d
		}
	}

	if err := parseYAMLDuration(raw.DefaultTTL, &c.DefaultTTL); err != nil {
		return err
	}
	return parseYAMLDuration(raw.StaleRetention, &c.StaleRetention)
}

func (c *LiveConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Enabled      *bool  `yaml:"enabled"`
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		Path         string `yaml:"path"`
		PingInterval string `yaml:"ping_interval"`
		PongWait     string `yaml:"pong_wait"`
		WriteWait    string `yaml:"write_wait"`
		SendBuffer   int    `yaml:"send_buffer"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.Host != "" {
		c.Host = raw.Host
	}
	if raw.Port != 0 {
		c.Port = raw.Port
	}
	if raw.Path != "" {
		c.Path = raw.Path
	}
	if raw.SendBuffer != 0 {
		c.SendBuffer = raw.SendBuffer
	}

	for _, pair := range []struct {
		raw    string
		target *time.Duration
	}{
		{raw.PingInterval, &c.PingInterval},
		{raw.PongWait, &c.PongWait},
		{raw.WriteWait, &c.WriteWait},
	} {
		if err := parseYAMLDuration(pair.raw, pair.target); err != nil {
			return err
		}
	}
	return nil
}

func (c *AlertsConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Enabled    *bool  `yaml:"enabled"`
		DBPath     string `yaml:"db_path"`
		Timeout    string `yaml:"timeout"`
		MaxRetries int    `yaml:"max_retries"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.DBPath != "" {
		c.DBPath = raw.DBPath
	}
	if raw.MaxRetries != 0 {
		c.MaxRetries = raw.MaxRetries
	}
	return parseYAMLDuration(raw.Timeout, &c.Timeout)
}
