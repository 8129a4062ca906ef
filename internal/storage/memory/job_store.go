package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/mcpindex/internal/index"
)

// JobStore provides an in-memory crawl job ledger.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]index.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]index.Job)}
}

// CreateJob stores a new job in pending status.
func (s *JobStore) CreateJob(_ context.Context, job index.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	if job.Status == "" {
		job.Status = index.JobStatusPending
	}
	if job.Status != index.JobStatusPending {
		return fmt.Errorf("create job with status %s: %w", job.Status, index.ErrInvalidTransition)
	}
	s.jobs[job.ID] = job
	return nil
}

// StartJob moves a pending job to running.
func (s *JobStore) StartJob(_ context.Context, jobID string, at time.Time) error {
	return s.transition(jobID, index.JobStatusRunning, func(job *index.Job) {
		job.StartedAt = pointerTime(at)
	})
}

// CompleteJob moves a running job to completed with its counters.
func (s *JobStore) CompleteJob(_ context.Context, jobID string, stats index.Stats, at time.Time) error {
	return s.transition(jobID, index.JobStatusCompleted, func(job *index.Job) {
		job.Found = stats.Found
		job.Added = stats.Added
		job.Updated = stats.Updated
		job.Errors = slices.Clone(stats.Errors)
		job.CompletedAt = pointerTime(at)
	})
}

// FailJob moves any non-terminal job to failed.
func (s *JobStore) FailJob(_ context.Context, jobID string, errs []string, at time.Time) error {
	return s.transition(jobID, index.JobStatusFailed, func(job *index.Job) {
		job.Errors = append(job.Errors, errs...)
		job.CompletedAt = pointerTime(at)
	})
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (index.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return index.Job{}, fmt.Errorf("job %s: %w", jobID, index.ErrNotFound)
	}
	job.Errors = slices.Clone(job.Errors)
	return job, nil
}

// ListJobs returns every job, in no particular order.
func (s *JobStore) ListJobs(_ context.Context) ([]index.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]index.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	return out, nil
}

func (s *JobStore) transition(jobID string, to index.JobStatus, apply func(*index.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, index.ErrNotFound)
	}
	if !allowed(job.Status, to) {
		return fmt.Errorf("job %s %s -> %s: %w", jobID, job.Status, to, index.ErrInvalidTransition)
	}
	job.Status = to
	apply(&job)
	s.jobs[jobID] = job
	return nil
}

// allowed encodes pending -> running -> completed, with failed reachable
// from either non-terminal state.
func allowed(from, to index.JobStatus) bool {
	switch to {
	case index.JobStatusRunning:
		return from == index.JobStatusPending
	case index.JobStatusCompleted:
		return from == index.JobStatusRunning
	case index.JobStatusFailed:
		return !from.Terminal()
	default:
		return false
	}
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
