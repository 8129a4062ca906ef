package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JakeFAU/mcpindex/internal/index"
)

const sourceColumns = `id, name, type, enabled, schedule, config, last_run_at`

// SourceStore implements index.SourceStore over crawl_sources.
type SourceStore struct {
	pool Pool
}

// NewSourceStore wraps pool.
func NewSourceStore(pool Pool) (*SourceStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SourceStore{pool: pool}, nil
}

// FindByName implements index.SourceStore.
func (s *SourceStore) FindByName(ctx context.Context, name string) (index.Source, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM crawl_sources WHERE name = $1`, name)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return index.Source{}, fmt.Errorf("source %q: %w", name, index.ErrSourceNotFound)
	}
	if err != nil {
		return index.Source{}, fmt.Errorf("find source %q: %w", name, err)
	}
	return src, nil
}

// ListSources implements index.SourceStore.
func (s *SourceStore) ListSources(ctx context.Context, enabledOnly bool) ([]index.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM crawl_sources`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	var out []index.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// UpsertSource inserts or replaces the source with the same name. The stored
// id and last run time are kept.
func (s *SourceStore) UpsertSource(ctx context.Context, src index.Source) (index.Source, error) {
	if src.Name == "" {
		return index.Source{}, fmt.Errorf("upsert source: empty name")
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	cfg, err := marshalMap(src.Config)
	if err != nil {
		return index.Source{}, fmt.Errorf("marshal source config: %w", err)
	}
	const query = `
INSERT INTO crawl_sources (id, name, type, enabled, schedule, config)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (name) DO UPDATE SET
	type = EXCLUDED.type,
	enabled = EXCLUDED.enabled,
	schedule = EXCLUDED.schedule,
	config = EXCLUDED.config
RETURNING ` + sourceColumns
	row := s.pool.QueryRow(ctx, query, src.ID, src.Name, string(src.Type), src.Enabled, src.Schedule, cfg)
	stored, err := scanSource(row)
	if err != nil {
		return index.Source{}, fmt.Errorf("upsert source %q: %w", src.Name, err)
	}
	return stored, nil
}

// MarkRun implements index.SourceStore.
func (s *SourceStore) MarkRun(ctx context.Context, sourceID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE crawl_sources SET last_run_at = $1 WHERE id = $2`, at, sourceID)
	if err != nil {
		return fmt.Errorf("mark run %s: %w", sourceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark run %s: %w", sourceID, index.ErrSourceNotFound)
	}
	return nil
}

func scanSource(row pgx.Row) (index.Source, error) {
	var (
		src     index.Source
		typ     string
		cfg     []byte
		lastRun pgtype.Timestamptz
	)
	if err := row.Scan(&src.ID, &src.Name, &typ, &src.Enabled, &src.Schedule, &cfg, &lastRun); err != nil {
		return index.Source{}, err
	}
	src.Type = index.SourceType(typ)
	if err := unmarshalMap(cfg, &src.Config); err != nil {
		return index.Source{}, fmt.Errorf("decode source config: %w", err)
	}
	if lastRun.Valid {
		ts := lastRun.Time
		src.LastRunAt = &ts
	}
	return src, nil
}
