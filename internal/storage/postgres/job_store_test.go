package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mcpindex/internal/index"
)

func newJobMock(t *testing.T) (pgxmock.PgxPoolIface, *JobStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewJobStore(mock)
	require.NoError(t, err)
	return mock, store
}

func TestJobStoreCreateAndStart(t *testing.T) {
	t.Parallel()

	mock, store := newJobMock(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(`INSERT INTO crawl_jobs`).
		WithArgs("j1", "s1", "github", "pending", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE crawl_jobs SET status = 'running'`).
		WithArgs("j1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, index.Job{ID: "j1", SourceID: "s1", SourceName: "github", CreatedAt: now}))
	require.NoError(t, store.StartJob(ctx, "j1", now))
	require.NoError(t, mock.ExpectationsWereMet())

	require.ErrorIs(t, store.CreateJob(ctx, index.Job{ID: "j2", Status: index.JobStatusRunning}), index.ErrInvalidTransition)
}

func TestJobStoreCompleteRejectsTerminal(t *testing.T) {
	t.Parallel()

	mock, store := newJobMock(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(`UPDATE crawl_jobs SET status = 'completed'`).
		WithArgs("j1", 3, 2, 1, []byte(`["crawl error: boom"]`), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM crawl_jobs`).WithArgs("j1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("failed"))

	err := store.CompleteJob(context.Background(), "j1", index.Stats{
		Found: 3, Added: 2, Updated: 1, Errors: []string{"crawl error: boom"},
	}, now)
	require.ErrorIs(t, err, index.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreFailMissingJob(t *testing.T) {
	t.Parallel()

	mock, store := newJobMock(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(`UPDATE crawl_jobs SET status = 'failed'`).
		WithArgs("ghost", []byte(`["context canceled"]`), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM crawl_jobs`).WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"status"}))

	err := store.FailJob(context.Background(), "ghost", []string{"context canceled"}, now)
	require.ErrorIs(t, err, index.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreGetJob(t *testing.T) {
	t.Parallel()

	mock, store := newJobMock(t)
	created := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`FROM crawl_jobs WHERE id = \$1`).WithArgs("j1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source_id", "source_name", "status", "servers_found", "servers_added",
			"servers_updated", "errors", "created_at", "started_at", "completed_at",
		}).AddRow("j1", "s1", "npm", "pending", 0, 0, 0, []byte(`[]`), created, nil, nil))

	job, err := store.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, index.JobStatusPending, job.Status)
	assert.Equal(t, "npm", job.SourceName)
	assert.Empty(t, job.Errors)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
