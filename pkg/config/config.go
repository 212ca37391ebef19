package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	podsyncjson "github.com/meftunca/podsync/pkg/json"
)

// SerializationType defines the envelope serialization format
type SerializationType string

const (
	SerializationCBOR    SerializationType = "cbor"
	SerializationJSON    SerializationType = "json"
	SerializationMsgPack SerializationType = "msgpack"
)

// PodConfig holds pod identity settings
type PodConfig struct {
	// Name overrides the host label used to derive the pod identity.
	// When empty the hostname is used.
	Name string `mapstructure:"name" yaml:"name" json:"name"`
}

// RedisConfig holds backing-store connection settings
type RedisConfig struct {
	Addresses    []string      `mapstructure:"addresses" yaml:"addresses" json:"addresses"`
	Username     string        `mapstructure:"username" yaml:"username" json:"username"`
	Password     string        `mapstructure:"password" yaml:"password" json:"password"`
	DB           int           `mapstructure:"db" yaml:"db" json:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns" json:"min_idle_conns"`
}

// ElectionConfig holds leadership lease timing settings
type ElectionConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval" json:"heartbeat_interval"`
	ElectionTimeout   time.Duration `mapstructure:"election_timeout" yaml:"election_timeout" json:"election_timeout"`
	LeaseGrace        time.Duration `mapstructure:"lease_grace" yaml:"lease_grace" json:"lease_grace"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff" json:"retry_backoff"`
}

// LeaseTTL is the TTL applied to the leadership key on acquisition and renewal.
func (c ElectionConfig) LeaseTTL() time.Duration {
	return c.ElectionTimeout + c.LeaseGrace
}

// RegistryConfig holds pod liveness registry settings
type RegistryConfig struct {
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval" json:"heartbeat_interval"`
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold" yaml:"staleness_threshold" json:"staleness_threshold"`
	ScanCount          int64         `mapstructure:"scan_count" yaml:"scan_count" json:"scan_count"`
}

// HeartbeatTTL is the TTL applied to per-pod heartbeat keys.
func (c RegistryConfig) HeartbeatTTL() time.Duration {
	return 3 * c.HeartbeatInterval
}

// BusConfig holds messaging bus settings
type BusConfig struct {
	QueueSize      int           `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout" yaml:"publish_timeout" json:"publish_timeout"`
}

// SerializationConfig holds envelope serialization settings
type SerializationConfig struct {
	Type       SerializationType  `mapstructure:"type" yaml:"type" json:"type"`
	JSONConfig podsyncjson.Config `mapstructure:"json" yaml:"json" json:"json"`
}

// APIConfig holds admin HTTP server settings
type APIConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Host         string        `mapstructure:"host" yaml:"host" json:"host"`
	Port         int           `mapstructure:"port" yaml:"port" json:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
}

// MonitoringConfig holds metrics settings
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MetricsPort int    `mapstructure:"metrics_port" yaml:"metrics_port" json:"metrics_port"`
	MetricsPath string `mapstructure:"metrics_path" yaml:"metrics_path" json:"metrics_path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	Output string `mapstructure:"output" yaml:"output" json:"output"`
}

// Config represents the main configuration structure
type Config struct {
	Pod           PodConfig           `mapstructure:"pod" yaml:"pod" json:"pod"`
	Redis         RedisConfig         `mapstructure:"redis" yaml:"redis" json:"redis"`
	Election      ElectionConfig      `mapstructure:"election" yaml:"election" json:"election"`
	Registry      RegistryConfig      `mapstructure:"registry" yaml:"registry" json:"registry"`
	Bus           BusConfig           `mapstructure:"bus" yaml:"bus" json:"bus"`
	Serialization SerializationConfig `mapstructure:"serialization" yaml:"serialization" json:"serialization"`
	API           APIConfig           `mapstructure:"api" yaml:"api" json:"api"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring" yaml:"monitoring" json:"monitoring"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addresses:    []string{"localhost:6379"},
			DB:           0,
			KeyPrefix:    "podsync",
			DialTimeout:  10 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			PoolSize:     20,
			MinIdleConns: 2,
		},
		Election: ElectionConfig{
			HeartbeatInterval: 10 * time.Second,
			ElectionTimeout:   30 * time.Second,
			LeaseGrace:        5 * time.Second,
			RetryBackoff:      2 * time.Second,
		},
		Registry: RegistryConfig{
			HeartbeatInterval:  10 * time.Second,
			StalenessThreshold: 30 * time.Second,
			ScanCount:          100,
		},
		Bus: BusConfig{
			QueueSize:      256,
			PublishTimeout: 3 * time.Second,
		},
		Serialization: SerializationConfig{
			Type:       SerializationCBOR,
			JSONConfig: podsyncjson.DefaultConfig(),
		},
		API: APIConfig{
			Enabled:      true,
			Host:         "0.0.0.0",
			Port:         8081,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPort: 9090,
			MetricsPath: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// LoadConfig loads configuration from file with environment overrides
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	config := DefaultConfig()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/podsync")
	}

	v.SetEnvPrefix("PODSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Serialization.Type {
	case SerializationCBOR, SerializationJSON, SerializationMsgPack:
		// Valid
	default:
		return fmt.Errorf("invalid serialization type: %s", c.Serialization.Type)
	}

	if len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("at least one redis address is required")
	}

	if c.Redis.KeyPrefix == "" {
		return fmt.Errorf("redis key prefix must not be empty")
	}

	if c.Election.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}

	if c.Election.ElectionTimeout <= c.Election.HeartbeatInterval {
		return fmt.Errorf("election timeout (%v) must exceed heartbeat interval (%v)",
			c.Election.ElectionTimeout, c.Election.HeartbeatInterval)
	}

	if c.Election.LeaseGrace < 0 {
		return fmt.Errorf("lease grace must not be negative")
	}

	if c.Registry.HeartbeatInterval <= 0 {
		return fmt.Errorf("registry heartbeat interval must be positive")
	}

	if c.Registry.StalenessThreshold <= 0 {
		return fmt.Errorf("registry staleness threshold must be positive")
	}

	if c.Bus.QueueSize <= 0 {
		return fmt.Errorf("bus queue size must be positive")
	}

	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("invalid api port: %d", c.API.Port)
	}

	if c.Monitoring.Enabled && (c.Monitoring.MetricsPort <= 0 || c.Monitoring.MetricsPort > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Monitoring.MetricsPort)
	}

	return nil
}
