package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JakeFAU/mcpindex/internal/index"
)

// JobStore implements index.JobStore over crawl_jobs. Transitions are guarded
// in SQL so a terminal job is never reopened.
type JobStore struct {
	pool Pool
}

// NewJobStore wraps pool.
func NewJobStore(pool Pool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// CreateJob inserts a pending job.
func (s *JobStore) CreateJob(ctx context.Context, job index.Job) error {
	if job.Status == "" {
		job.Status = index.JobStatusPending
	}
	if job.Status != index.JobStatusPending {
		return fmt.Errorf("create job with status %s: %w", job.Status, index.ErrInvalidTransition)
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO crawl_jobs (id, source_id, source_name, status, created_at)
VALUES ($1,$2,$3,$4,$5)`,
		job.ID, job.SourceID, job.SourceName, string(job.Status), job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// StartJob moves a pending job to running.
func (s *JobStore) StartJob(ctx context.Context, jobID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_jobs SET status = 'running', started_at = $2
WHERE id = $1 AND status = 'pending'`, jobID, at)
	return s.checkTransition(ctx, jobID, "start", tag.RowsAffected(), err)
}

// CompleteJob moves a running job to completed with its counters.
func (s *JobStore) CompleteJob(ctx context.Context, jobID string, stats index.Stats, at time.Time) error {
	errs, err := marshalErrors(stats.Errors)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_jobs SET status = 'completed', servers_found = $2, servers_added = $3,
	servers_updated = $4, errors = $5, completed_at = $6
WHERE id = $1 AND status = 'running'`,
		jobID, stats.Found, stats.Added, stats.Updated, errs, at)
	return s.checkTransition(ctx, jobID, "complete", tag.RowsAffected(), err)
}

// FailJob moves a pending or running job to failed, appending errs.
func (s *JobStore) FailJob(ctx context.Context, jobID string, errs []string, at time.Time) error {
	payload, err := marshalErrors(errs)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_jobs SET status = 'failed', errors = errors || $2::jsonb, completed_at = $3
WHERE id = $1 AND status IN ('pending', 'running')`, jobID, payload, at)
	return s.checkTransition(ctx, jobID, "fail", tag.RowsAffected(), err)
}

// GetJob implements index.JobStore.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (index.Job, error) {
	var (
		job       index.Job
		status    string
		errs      []byte
		started   pgtype.Timestamptz
		completed pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, source_id, source_name, status, servers_found, servers_added, servers_updated,
	errors, created_at, started_at, completed_at
FROM crawl_jobs WHERE id = $1`, jobID).Scan(
		&job.ID, &job.SourceID, &job.SourceName, &status, &job.Found, &job.Added, &job.Updated,
		&errs, &job.CreatedAt, &started, &completed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return index.Job{}, fmt.Errorf("job %s: %w", jobID, index.ErrNotFound)
	}
	if err != nil {
		return index.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	job.Status = index.JobStatus(status)
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &job.Errors); err != nil {
			return index.Job{}, fmt.Errorf("decode job errors: %w", err)
		}
	}
	if started.Valid {
		ts := started.Time
		job.StartedAt = &ts
	}
	if completed.Valid {
		ts := completed.Time
		job.CompletedAt = &ts
	}
	return job, nil
}

// checkTransition distinguishes a missing job from a disallowed transition
// when an update matched no rows.
func (s *JobStore) checkTransition(ctx context.Context, jobID, op string, affected int64, execErr error) error {
	if execErr != nil {
		return fmt.Errorf("%s job %s: %w", op, jobID, execErr)
	}
	if affected > 0 {
		return nil
	}
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM crawl_jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s job %s: %w", op, jobID, index.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s job %s: %w", op, jobID, err)
	}
	return fmt.Errorf("%s job %s from %s: %w", op, jobID, status, index.ErrInvalidTransition)
}

func marshalErrors(errs []string) ([]byte, error) {
	if errs == nil {
		errs = []string{}
	}
	payload, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("marshal job errors: %w", err)
	}
	return payload, nil
}
