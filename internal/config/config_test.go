package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: debug
storage:
  backend: postgres
  postgres:
    dsn: postgres://localhost/mcpindex
    max_conns: 4
blob:
  backend: local
  prefix: snapshots
  local:
    dir: /tmp/mcpindex
publisher:
  backend: memory
fetch:
  retries: 5
  base_delay: 250ms
  timeout: 10s
  user_agent: test-agent
rate_limits:
  github:
    capacity: 5000
    refill_per_second: 1.4
scheduler:
  concurrency: 4
  queue_depth: 16
  shutdown_timeout: 5s
sources:
  file: sources.yaml
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Storage.Backend != BackendPostgres || cfg.Storage.Postgres.MaxConns != 4 {
		t.Fatalf("expected postgres storage overrides, got %+v", cfg.Storage)
	}
	if cfg.Blob.Backend != BackendLocal || cfg.Blob.Local.Dir != "/tmp/mcpindex" || cfg.Blob.Prefix != "snapshots" {
		t.Fatalf("expected blob overrides, got %+v", cfg.Blob)
	}
	if cfg.Fetch.BaseDelay != 250*time.Millisecond || cfg.Fetch.Timeout != 10*time.Second || cfg.Fetch.Retries != 5 {
		t.Fatalf("expected fetch overrides, got %+v", cfg.Fetch)
	}
	if got := cfg.RateLimits[ratelimit.UpstreamGitHub]; got.Capacity != 5000 || got.RefillPerSecond != 1.4 {
		t.Fatalf("expected github bucket override, got %+v", got)
	}
	if got := cfg.RateLimits[ratelimit.UpstreamNPM]; got.Capacity != 100 {
		t.Fatalf("expected npm bucket default to survive, got %+v", got)
	}
	if cfg.Scheduler.Concurrency != 4 || cfg.Scheduler.ShutdownTimeout != 5*time.Second {
		t.Fatalf("expected scheduler overrides, got %+v", cfg.Scheduler)
	}
	if cfg.Sources.File != "sources.yaml" {
		t.Fatalf("expected sources file, got %q", cfg.Sources.File)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != BackendMemory || cfg.Blob.Backend != BackendNone || cfg.Publisher.Backend != BackendNone {
		t.Fatalf("unexpected backend defaults: %+v %+v %+v", cfg.Storage, cfg.Blob, cfg.Publisher)
	}
	if cfg.Scheduler.Concurrency != 2 || cfg.Scheduler.QueueDepth != 64 || cfg.Scheduler.TaskRetention != 24*time.Hour {
		t.Fatalf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if len(cfg.RateLimits) != len(ratelimit.DefaultBuckets()) {
		t.Fatalf("expected default buckets, got %+v", cfg.RateLimits)
	}
	if got := cfg.RateLimiter().Buckets[ratelimit.UpstreamWeb]; got.Capacity != 10 {
		t.Fatalf("expected web bucket capacity 10, got %+v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Storage:   StorageConfig{Backend: BackendMemory},
		Blob:      BlobConfig{Backend: BackendNone},
		Publisher: PublisherConfig{Backend: BackendNone},
		Fetch:     FetchConfig{Retries: 1, Timeout: time.Second},
		Scheduler: SchedulerConfig{Concurrency: 1, QueueDepth: 1},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "sqlite" }, want: "storage.backend"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Backend = BackendPostgres }, want: "storage.postgres.dsn"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Blob.Backend = BackendGCS }, want: "blob.gcs.bucket"},
		{name: "local without dir", mutate: func(c *Config) { c.Blob.Backend = BackendLocal }, want: "blob.local.dir"},
		{name: "unknown blob", mutate: func(c *Config) { c.Blob.Backend = "s3" }, want: "blob.backend"},
		{name: "pubsub without project", mutate: func(c *Config) { c.Publisher.Backend = BackendPubSub }, want: "publisher.pubsub.project_id"},
		{name: "unknown publisher", mutate: func(c *Config) { c.Publisher.Backend = "kafka" }, want: "publisher.backend"},
		{name: "negative retries", mutate: func(c *Config) { c.Fetch.Retries = -1 }, want: "fetch.retries"},
		{name: "zero timeout", mutate: func(c *Config) { c.Fetch.Timeout = 0 }, want: "fetch.timeout"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Scheduler.Concurrency = 0 }, want: "scheduler.concurrency"},
		{name: "zero queue depth", mutate: func(c *Config) { c.Scheduler.QueueDepth = 0 }, want: "scheduler.queue_depth"},
		{
			name: "bad bucket",
			mutate: func(c *Config) {
				c.RateLimits = map[string]ratelimit.BucketConfig{"github": {Capacity: 0, RefillPerSecond: 1}}
			},
			want: "rate_limits.github",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
