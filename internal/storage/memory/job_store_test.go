package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mcpindex/internal/index"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	job := index.Job{ID: "job-1", SourceID: "src-1", SourceName: "github", CreatedAt: now}

	require.NoError(t, store.CreateJob(ctx, job))
	require.Error(t, store.CreateJob(ctx, job), "duplicate job id")

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, index.JobStatusPending, got.Status)

	require.ErrorIs(t, store.CompleteJob(ctx, job.ID, index.Stats{}, now), index.ErrInvalidTransition,
		"pending jobs cannot skip running")

	require.NoError(t, store.StartJob(ctx, job.ID, now.Add(time.Second)))
	require.NoError(t, store.CompleteJob(ctx, job.ID, index.Stats{
		Found: 3, Added: 2, Updated: 1, Errors: []string{"crawl error: boom"},
	}, now.Add(time.Minute)))

	final, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, index.JobStatusCompleted, final.Status)
	assert.Equal(t, 3, final.Found)
	assert.Equal(t, 2, final.Added)
	assert.Equal(t, 1, final.Updated)
	assert.Equal(t, []string{"crawl error: boom"}, final.Errors)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, now.Add(time.Minute), *final.CompletedAt)

	require.ErrorIs(t, store.FailJob(ctx, job.ID, []string{"late"}, now), index.ErrInvalidTransition,
		"terminal jobs stay terminal")
	require.ErrorIs(t, store.StartJob(ctx, job.ID, now), index.ErrInvalidTransition)
}

func TestJobStoreFailFromPending(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, index.Job{ID: "job-2"}))
	require.NoError(t, store.FailJob(ctx, "job-2", []string{"unknown source type"}, time.Now()))

	job, err := store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, index.JobStatusFailed, job.Status)
	assert.Equal(t, []string{"unknown source type"}, job.Errors)

	_, err = store.GetJob(ctx, "missing")
	require.ErrorIs(t, err, index.ErrNotFound)
	require.ErrorIs(t, store.StartJob(ctx, "missing", time.Now()), index.ErrNotFound)
}
