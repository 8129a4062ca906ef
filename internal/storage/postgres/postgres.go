// Package postgres provides Postgres-backed index, source and job stores.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the stores use.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Connect opens a pool using cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// Schema creates every table the stores need. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS mcp_servers (
	id               UUID PRIMARY KEY,
	slug             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	repository_url   TEXT NOT NULL DEFAULT '',
	package          TEXT NOT NULL DEFAULT '',
	homepage         TEXT NOT NULL DEFAULT '',
	author           TEXT NOT NULL DEFAULT '',
	license          TEXT NOT NULL DEFAULT '',
	version          TEXT NOT NULL DEFAULT '',
	install_command  TEXT NOT NULL DEFAULT '',
	stars            INTEGER NOT NULL DEFAULT 0,
	weekly_downloads INTEGER NOT NULL DEFAULT 0,
	is_official      BOOLEAN NOT NULL DEFAULT FALSE,
	metadata         JSONB NOT NULL DEFAULT '{}'::jsonb,
	quality_score    INTEGER NOT NULL DEFAULT 0,
	last_crawled_at  TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS mcp_tools (
	server_id    UUID NOT NULL REFERENCES mcp_servers(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	input_schema JSONB,
	PRIMARY KEY (server_id, position)
)`,
	`CREATE TABLE IF NOT EXISTS mcp_resources (
	server_id   UUID NOT NULL REFERENCES mcp_servers(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	uri         TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	mime_type   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (server_id, position)
)`,
	`CREATE TABLE IF NOT EXISTS mcp_prompts (
	server_id   UUID NOT NULL REFERENCES mcp_servers(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	arguments   JSONB,
	PRIMARY KEY (server_id, position)
)`,
	`CREATE TABLE IF NOT EXISTS crawl_sources (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	type        TEXT NOT NULL,
	enabled     BOOLEAN NOT NULL DEFAULT TRUE,
	schedule    TEXT NOT NULL DEFAULT '',
	config      JSONB NOT NULL DEFAULT '{}'::jsonb,
	last_run_at TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS crawl_jobs (
	id              UUID PRIMARY KEY,
	source_id       UUID NOT NULL,
	source_name     TEXT NOT NULL,
	status          TEXT NOT NULL,
	servers_found   INTEGER NOT NULL DEFAULT 0,
	servers_added   INTEGER NOT NULL DEFAULT 0,
	servers_updated INTEGER NOT NULL DEFAULT 0,
	errors          JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at      TIMESTAMPTZ NOT NULL,
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS crawl_jobs_source_idx ON crawl_jobs (source_id, created_at DESC)`,
}

// Migrate applies Schema.
func Migrate(ctx context.Context, pool Pool) error {
	for i, stmt := range Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
