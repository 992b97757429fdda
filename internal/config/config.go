package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API           APIConfig           `mapstructure:"api"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Sender        SenderConfig        `mapstructure:"sender"`
	BusinessHours BusinessHoursConfig `mapstructure:"business_hours"`
	Transport     TransportConfig     `mapstructure:"transport"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// APIConfig holds the ops HTTP server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueueConfig holds dispatch queue configuration.
type QueueConfig struct {
	// BatchSize is the fixed number of contacts per campaign batch.
	BatchSize int `mapstructure:"batch_size"`
	// Shuffle randomizes contact processing order at enqueue time.
	Shuffle bool `mapstructure:"shuffle"`
	// ItemSpacing is the score gap between consecutive queued items.
	ItemSpacing time.Duration `mapstructure:"item_spacing"`
	// MaxConcurrency bounds the number of in-flight sends per instance.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// SweepInterval is how often the consumer sweep runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// RecoverInterval is how often stuck-item recovery runs.
	RecoverInterval time.Duration `mapstructure:"recover_interval"`
	// StuckThreshold is the in-flight age after which an item is considered stuck.
	StuckThreshold time.Duration `mapstructure:"stuck_threshold"`
	// LockTTL is the expiry of the cross-process consumer lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// MarkerTTL is the expiry of the idempotent-enqueue marker.
	MarkerTTL time.Duration `mapstructure:"marker_ttl"`
}

// SenderConfig holds message sender configuration.
type SenderConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	MinSendDelay time.Duration `mapstructure:"min_send_delay"`
	MaxSendDelay time.Duration `mapstructure:"max_send_delay"`
}

// BusinessHoursConfig holds the send-window configuration.
type BusinessHoursConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	StartHour int    `mapstructure:"start_hour"`
	EndHour   int    `mapstructure:"end_hour"`
	Timezone  string `mapstructure:"timezone"`
}

// TransportConfig holds outbound message transport configuration.
type TransportConfig struct {
	// Type selects the transport backend: "http" or "stdout" (default).
	Type       string        `mapstructure:"type"`
	GatewayURL string        `mapstructure:"gateway_url"`
	APIToken   string        `mapstructure:"api_token"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxFiles   int    `mapstructure:"max_files"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		API: APIConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			PoolMin:        2,
			PoolMax:        10,
			ConnectTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Queue: QueueConfig{
			BatchSize:       10,
			Shuffle:         true,
			ItemSpacing:     time.Second,
			MaxConcurrency:  5,
			SweepInterval:   15 * time.Second,
			RecoverInterval: time.Minute,
			StuckThreshold:  5 * time.Minute,
			LockTTL:         30 * time.Second,
			MarkerTTL:       72 * time.Hour,
		},
		Sender: SenderConfig{
			MaxRetries:   3,
			RetryDelay:   time.Second,
			MinSendDelay: 5 * time.Second,
			MaxSendDelay: 30 * time.Second,
		},
		BusinessHours: BusinessHoursConfig{
			Enabled:   true,
			StartHour: 9,
			EndHour:   18,
			Timezone:  "Local",
		},
		Transport: TransportConfig{
			Type:    "stdout",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			Compress: true,
		},
	}
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix DISPATCH_ override file values.
// For example, DISPATCH_REDIS_ADDR overrides redis.addr.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// hard-to-diagnose runtime behavior.
func (c *Config) Validate() error {
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive, got %d", c.Queue.BatchSize)
	}
	if c.Queue.MaxConcurrency <= 0 {
		return fmt.Errorf("queue.max_concurrency must be positive, got %d", c.Queue.MaxConcurrency)
	}
	if c.Sender.MaxRetries <= 0 {
		return fmt.Errorf("sender.max_retries must be positive, got %d", c.Sender.MaxRetries)
	}
	if c.Sender.MinSendDelay > c.Sender.MaxSendDelay {
		return fmt.Errorf("sender.min_send_delay %s exceeds max_send_delay %s",
			c.Sender.MinSendDelay, c.Sender.MaxSendDelay)
	}
	if c.BusinessHours.Enabled {
		bh := c.BusinessHours
		if bh.StartHour < 0 || bh.StartHour > 23 || bh.EndHour < 1 || bh.EndHour > 24 || bh.StartHour >= bh.EndHour {
			return fmt.Errorf("business_hours window [%d, %d) is invalid", bh.StartHour, bh.EndHour)
		}
	}
	return nil
}
