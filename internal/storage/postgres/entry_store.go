package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/mcpindex/internal/index"
)

const entryColumns = `id, slug, name, description, repository_url, package, homepage, author, license,
	version, install_command, stars, weekly_downloads, is_official, metadata, quality_score,
	last_crawled_at, created_at, updated_at`

// EntryStore implements index.EntryStore over the mcp_servers tables.
type EntryStore struct {
	pool Pool
}

// NewEntryStore wraps pool.
func NewEntryStore(pool Pool) (*EntryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &EntryStore{pool: pool}, nil
}

// ExistsBySlug implements index.EntryStore.
func (s *EntryStore) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM mcp_servers WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists %q: %w", slug, err)
	}
	return exists, nil
}

// UpsertEntry inserts entry or overwrites the crawled columns of the row with
// the same slug. The stored id, created_at and quality_score are returned.
func (s *EntryStore) UpsertEntry(ctx context.Context, entry index.Entry) (index.Entry, error) {
	if entry.Slug == "" {
		return index.Entry{}, fmt.Errorf("upsert entry: empty slug")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return index.Entry{}, fmt.Errorf("upsert entry: %w", err)
	}
	metadata, err := marshalMap(entry.Metadata)
	if err != nil {
		return index.Entry{}, fmt.Errorf("marshal metadata: %w", err)
	}
	const query = `
INSERT INTO mcp_servers (
	id, slug, name, description, repository_url, package, homepage, author, license,
	version, install_command, stars, weekly_downloads, is_official, metadata,
	last_crawled_at, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17
)
ON CONFLICT (slug) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	repository_url = EXCLUDED.repository_url,
	package = EXCLUDED.package,
	homepage = EXCLUDED.homepage,
	author = EXCLUDED.author,
	license = EXCLUDED.license,
	version = EXCLUDED.version,
	install_command = EXCLUDED.install_command,
	stars = EXCLUDED.stars,
	weekly_downloads = EXCLUDED.weekly_downloads,
	is_official = EXCLUDED.is_official,
	metadata = EXCLUDED.metadata,
	last_crawled_at = EXCLUDED.last_crawled_at,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at, quality_score`

	err = s.pool.QueryRow(ctx, query,
		id.String(),
		entry.Slug,
		entry.Name,
		entry.Description,
		entry.RepositoryURL,
		entry.Package,
		entry.Homepage,
		entry.Author,
		entry.License,
		entry.Version,
		entry.InstallCommand,
		entry.Stars,
		entry.WeeklyDownloads,
		entry.IsOfficial,
		metadata,
		entry.LastCrawledAt,
		entry.UpdatedAt,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.QualityScore)
	if err != nil {
		return index.Entry{}, fmt.Errorf("upsert entry %q: %w", entry.Slug, err)
	}
	return entry, nil
}

// ReplaceCapabilities deletes and reinserts every non-nil kind inside one
// transaction.
func (s *EntryStore) ReplaceCapabilities(ctx context.Context, entryID string, caps index.Capabilities) (err error) {
	if !caps.Supplied() {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			err = fmt.Errorf("commit: %w", cerr)
		}
	}()

	if caps.Tools != nil {
		if _, err = tx.Exec(ctx, `DELETE FROM mcp_tools WHERE server_id = $1`, entryID); err != nil {
			return fmt.Errorf("delete tools: %w", err)
		}
		for i, t := range caps.Tools {
			if _, err = tx.Exec(ctx,
				`INSERT INTO mcp_tools (server_id, position, name, description, input_schema) VALUES ($1,$2,$3,$4,$5)`,
				entryID, i, t.Name, t.Description, rawOrNil(t.InputSchema),
			); err != nil {
				return fmt.Errorf("insert tool %q: %w", t.Name, err)
			}
		}
	}
	if caps.Resources != nil {
		if _, err = tx.Exec(ctx, `DELETE FROM mcp_resources WHERE server_id = $1`, entryID); err != nil {
			return fmt.Errorf("delete resources: %w", err)
		}
		for i, r := range caps.Resources {
			if _, err = tx.Exec(ctx,
				`INSERT INTO mcp_resources (server_id, position, uri, name, description, mime_type) VALUES ($1,$2,$3,$4,$5,$6)`,
				entryID, i, r.URI, r.Name, r.Description, r.MimeType,
			); err != nil {
				return fmt.Errorf("insert resource %q: %w", r.URI, err)
			}
		}
	}
	if caps.Prompts != nil {
		if _, err = tx.Exec(ctx, `DELETE FROM mcp_prompts WHERE server_id = $1`, entryID); err != nil {
			return fmt.Errorf("delete prompts: %w", err)
		}
		for i, p := range caps.Prompts {
			if _, err = tx.Exec(ctx,
				`INSERT INTO mcp_prompts (server_id, position, name, description, arguments) VALUES ($1,$2,$3,$4,$5)`,
				entryID, i, p.Name, p.Description, rawOrNil(p.Arguments),
			); err != nil {
				return fmt.Errorf("insert prompt %q: %w", p.Name, err)
			}
		}
	}
	return nil
}

// GetBySlug implements index.EntryStore.
func (s *EntryStore) GetBySlug(ctx context.Context, slug string) (index.Entry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM mcp_servers WHERE slug = $1`, slug)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return index.Entry{}, fmt.Errorf("entry %q: %w", slug, index.ErrNotFound)
	}
	if err != nil {
		return index.Entry{}, fmt.Errorf("get entry %q: %w", slug, err)
	}
	return entry, nil
}

// Capabilities implements index.EntryStore.
func (s *EntryStore) Capabilities(ctx context.Context, entryID string) (index.Capabilities, error) {
	var caps index.Capabilities

	rows, err := s.pool.Query(ctx,
		`SELECT name, description, input_schema FROM mcp_tools WHERE server_id = $1 ORDER BY position`, entryID)
	if err != nil {
		return caps, fmt.Errorf("query tools: %w", err)
	}
	caps.Tools, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (index.Tool, error) {
		var t index.Tool
		var schema []byte
		err := row.Scan(&t.Name, &t.Description, &schema)
		t.InputSchema = schema
		return t, err
	})
	if err != nil {
		return caps, fmt.Errorf("scan tools: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT uri, name, description, mime_type FROM mcp_resources WHERE server_id = $1 ORDER BY position`, entryID)
	if err != nil {
		return caps, fmt.Errorf("query resources: %w", err)
	}
	caps.Resources, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (index.Resource, error) {
		var r index.Resource
		err := row.Scan(&r.URI, &r.Name, &r.Description, &r.MimeType)
		return r, err
	})
	if err != nil {
		return caps, fmt.Errorf("scan resources: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT name, description, arguments FROM mcp_prompts WHERE server_id = $1 ORDER BY position`, entryID)
	if err != nil {
		return caps, fmt.Errorf("query prompts: %w", err)
	}
	caps.Prompts, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (index.Prompt, error) {
		var p index.Prompt
		var args []byte
		err := row.Scan(&p.Name, &p.Description, &args)
		p.Arguments = args
		return p, err
	})
	if err != nil {
		return caps, fmt.Errorf("scan prompts: %w", err)
	}
	return caps, nil
}

// ListForScoring returns every entry with its capability counts, ordered by slug.
func (s *EntryStore) ListForScoring(ctx context.Context) ([]index.ScoringInput, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+entryColumns+`,
	(SELECT COUNT(*) FROM mcp_tools t WHERE t.server_id = s.id),
	(SELECT COUNT(*) FROM mcp_resources r WHERE r.server_id = s.id),
	(SELECT COUNT(*) FROM mcp_prompts p WHERE p.server_id = s.id)
FROM mcp_servers s
ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list for scoring: %w", err)
	}
	defer rows.Close()

	var out []index.ScoringInput
	for rows.Next() {
		var (
			in       index.ScoringInput
			metadata []byte
			tools    int64
			res      int64
			prompts  int64
		)
		e := &in.Entry
		if err := rows.Scan(
			&e.ID, &e.Slug, &e.Name, &e.Description, &e.RepositoryURL, &e.Package, &e.Homepage,
			&e.Author, &e.License, &e.Version, &e.InstallCommand, &e.Stars, &e.WeeklyDownloads,
			&e.IsOfficial, &metadata, &e.QualityScore, &e.LastCrawledAt, &e.CreatedAt, &e.UpdatedAt,
			&tools, &res, &prompts,
		); err != nil {
			return nil, fmt.Errorf("scan scoring row: %w", err)
		}
		if err := unmarshalMap(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %q: %w", e.Slug, err)
		}
		in.ToolCount, in.ResourceCount, in.PromptCount = int(tools), int(res), int(prompts)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scoring rows: %w", err)
	}
	return out, nil
}

// UpdateQualityScore implements index.EntryStore.
func (s *EntryStore) UpdateQualityScore(ctx context.Context, entryID string, score int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE mcp_servers SET quality_score = $1 WHERE id = $2`, score, entryID)
	if err != nil {
		return fmt.Errorf("update score %s: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update score %s: %w", entryID, index.ErrNotFound)
	}
	return nil
}

func scanEntry(row pgx.Row) (index.Entry, error) {
	var (
		e        index.Entry
		metadata []byte
	)
	if err := row.Scan(
		&e.ID, &e.Slug, &e.Name, &e.Description, &e.RepositoryURL, &e.Package, &e.Homepage,
		&e.Author, &e.License, &e.Version, &e.InstallCommand, &e.Stars, &e.WeeklyDownloads,
		&e.IsOfficial, &metadata, &e.QualityScore, &e.LastCrawledAt, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return index.Entry{}, err
	}
	if err := unmarshalMap(metadata, &e.Metadata); err != nil {
		return index.Entry{}, fmt.Errorf("decode metadata: %w", err)
	}
	return e, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(m)
}

func unmarshalMap(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
