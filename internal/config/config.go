// Package config loads and validates mcpindex configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
)

// Storage backends.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPubSub   = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig                      `mapstructure:"server"`
	Auth       AuthConfig                        `mapstructure:"auth"`
	Logging    LoggingConfig                     `mapstructure:"logging"`
	Storage    StorageConfig                     `mapstructure:"storage"`
	Blob       BlobConfig                        `mapstructure:"blob"`
	Publisher  PublisherConfig                   `mapstructure:"publisher"`
	Fetch      FetchConfig                       `mapstructure:"fetch"`
	RateLimits map[string]ratelimit.BucketConfig `mapstructure:"rate_limits"`
	Scheduler  SchedulerConfig                   `mapstructure:"scheduler"`
	Sources    SourcesConfig                     `mapstructure:"sources"`
	Lock       LockConfig                        `mapstructure:"lock"`
	GitHub     GitHubConfig                      `mapstructure:"github"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StorageConfig selects where entries, sources and jobs live.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls the pgx pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// BlobConfig selects where score snapshots are written.
type BlobConfig struct {
	Backend string          `mapstructure:"backend"`
	Prefix  string          `mapstructure:"prefix"`
	Local   LocalBlobConfig `mapstructure:"local"`
	GCS     GCSBlobConfig   `mapstructure:"gcs"`
}

// LocalBlobConfig points at a directory on disk.
type LocalBlobConfig struct {
	Dir string `mapstructure:"dir"`
}

// GCSBlobConfig names the snapshot bucket.
type GCSBlobConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// PublisherConfig selects the crawl event sink.
type PublisherConfig struct {
	Backend string       `mapstructure:"backend"`
	Topic   string       `mapstructure:"topic"`
	PubSub  PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds Google Pub/Sub coordinates.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// FetchConfig configures the outbound HTTP client.
type FetchConfig struct {
	Retries      int           `mapstructure:"retries"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// SchedulerConfig sizes the worker pool.
type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Concurrency     int           `mapstructure:"concurrency"`
	QueueDepth      int           `mapstructure:"queue_depth"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TaskRetention   time.Duration `mapstructure:"task_retention"`
}

// SourcesConfig points at an optional sources YAML file.
type SourcesConfig struct {
	File string `mapstructure:"file"`
}

// LockConfig sets where CLI crawl locks live.
type LockConfig struct {
	Dir string `mapstructure:"dir"`
}

// GitHubConfig carries the API token shared by GitHub sources.
type GitHubConfig struct {
	Token string `mapstructure:"token"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MCPINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.postgres.max_conns", 10)
	v.SetDefault("storage.postgres.migrate", true)
	v.SetDefault("blob.backend", BackendNone)
	v.SetDefault("blob.prefix", "mcpindex")
	v.SetDefault("blob.local.dir", "./data")
	v.SetDefault("publisher.backend", BackendNone)
	v.SetDefault("publisher.topic", "mcpindex-crawl-events")
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.base_delay", time.Second)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", "mcpindex/0.1")
	v.SetDefault("fetch.max_body_bytes", 32<<20)
	for name, bc := range ratelimit.DefaultBuckets() {
		v.SetDefault("rate_limits."+name+".capacity", bc.Capacity)
		v.SetDefault("rate_limits."+name+".refill_per_second", bc.RefillPerSecond)
	}
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.concurrency", 2)
	v.SetDefault("scheduler.queue_depth", 64)
	v.SetDefault("scheduler.shutdown_timeout", 30*time.Second)
	v.SetDefault("scheduler.task_retention", 24*time.Hour)
	v.SetDefault("lock.dir", ".mcpindex/locks")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, postgres", c.Storage.Backend)
	}
	switch c.Blob.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Blob.Local.Dir == "" {
			return fmt.Errorf("blob.local.dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Blob.GCS.Bucket == "" {
			return fmt.Errorf("blob.gcs.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("blob.backend %q is not one of none, memory, local, gcs", c.Blob.Backend)
	}
	switch c.Publisher.Backend {
	case BackendNone, BackendMemory:
	case BackendPubSub:
		if c.Publisher.PubSub.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.pubsub.project_id and publisher.topic must be set for the pubsub backend")
		}
	default:
		return fmt.Errorf("publisher.backend %q is not one of none, memory, pubsub", c.Publisher.Backend)
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be > 0")
	}
	if c.Scheduler.QueueDepth <= 0 {
		return fmt.Errorf("scheduler.queue_depth must be > 0")
	}
	for name, bc := range c.RateLimits {
		if bc.Capacity <= 0 || bc.RefillPerSecond <= 0 {
			return fmt.Errorf("rate_limits.%s needs a positive capacity and refill_per_second", name)
		}
	}
	return nil
}

// RateLimiter converts the rate_limits section into limiter config.
func (c Config) RateLimiter() ratelimit.Config {
	return ratelimit.Config{Buckets: c.RateLimits}
}
