package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/clock/system"
	"github.com/JakeFAU/mcpindex/internal/id/uuid"
	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/orchestrator"
	"github.com/JakeFAU/mcpindex/internal/queue"
	"github.com/JakeFAU/mcpindex/internal/storage/memory"
)

// gatedRunner blocks each run until release is closed or ctx ends.
type gatedRunner struct {
	release chan struct{}
	mu      sync.Mutex
	runs    []string
	calls   atomic.Int32
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{release: make(chan struct{})}
}

func (r *gatedRunner) RunForSource(ctx context.Context, name string) (orchestrator.Result, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.runs = append(r.runs, name)
	r.mu.Unlock()
	select {
	case <-r.release:
		return orchestrator.Result{JobID: "job-" + name, SourceName: name}, nil
	case <-ctx.Done():
		return orchestrator.Result{JobID: "job-" + name, SourceName: name}, ctx.Err()
	}
}

func newTestScheduler(t *testing.T, runner *gatedRunner, concurrency int, sources ...index.Source) *Scheduler {
	t.Helper()
	store := memory.NewSourceStore()
	for _, src := range sources {
		_, err := store.UpsertSource(context.Background(), src)
		require.NoError(t, err)
	}
	return New(Config{Concurrency: concurrency, QueueDepth: 4}, runner, store, uuid.New(), system.New(), zap.NewNop())
}

func TestEnqueueRunsTaskToCompletion(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner()
	s := newTestScheduler(t, runner, 2, index.Source{Name: "npm", Type: index.SourceTypeNPM, Enabled: true})
	s.Start(context.Background())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	taskID, err := s.Enqueue(context.Background(), "npm", queue.TriggerManual)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := s.Status(taskID)
		return err == nil && task.State == TaskActive
	}, time.Second, 5*time.Millisecond)

	_, err = s.Enqueue(context.Background(), "npm", queue.TriggerAPI)
	require.ErrorIs(t, err, ErrAlreadyQueued, "one pending task per source")

	close(runner.release)
	require.Eventually(t, func() bool {
		task, _ := s.Status(taskID)
		return task.State == TaskCompleted
	}, time.Second, 5*time.Millisecond)

	task, err := s.Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, "job-npm", task.JobID)
	assert.Equal(t, queue.TriggerManual, task.Trigger)
	assert.NotNil(t, task.StartedAt)
	assert.NotNil(t, task.FinishedAt)
	assert.Empty(t, task.Error)

	second, err := s.Enqueue(context.Background(), "npm", queue.TriggerManual)
	require.NoError(t, err, "the unique key is released once the task finishes")
	assert.NotEqual(t, taskID, second)
}

func TestEnqueueUnknownSource(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, newGatedRunner(), 1)
	_, err := s.Enqueue(context.Background(), "ghost", queue.TriggerManual)
	require.ErrorIs(t, err, index.ErrSourceNotFound)

	_, err = s.Status("missing")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestEnqueueAll(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, newGatedRunner(), 1,
		index.Source{Name: "a", Enabled: true},
		index.Source{Name: "b", Enabled: true},
		index.Source{Name: "off", Enabled: false},
	)
	ids, err := s.EnqueueAll(context.Background(), queue.TriggerAPI)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.NotContains(t, ids, "off")
	assert.Len(t, s.Tasks(), 2)
}

func TestScheduleAllReplacesEntries(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, newGatedRunner(), 1,
		index.Source{Name: "hourly", Enabled: true, Schedule: "0 * * * *"},
		index.Source{Name: "manual", Enabled: true},
		index.Source{Name: "broken", Enabled: true, Schedule: "every tuesday"},
		index.Source{Name: "disabled", Enabled: false, Schedule: "@daily"},
	)
	n, err := s.ScheduleAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.ScheduleAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rescheduling does not duplicate entries")
	assert.Contains(t, s.Entries(), "crawl:hourly")
}

func TestCronFiresEnqueue(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner()
	close(runner.release)
	s := newTestScheduler(t, runner, 1, index.Source{Name: "tick", Enabled: true, Schedule: "@every 1s"})
	_, err := s.ScheduleAll(context.Background())
	require.NoError(t, err)
	s.Start(context.Background())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	tasks := s.Tasks()
	require.NotEmpty(t, tasks)
	assert.Equal(t, queue.TriggerSchedule, tasks[len(tasks)-1].Trigger)
}

func TestShutdownCancelsInFlightAndFailsQueued(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner()
	s := newTestScheduler(t, runner, 1,
		index.Source{Name: "slow", Enabled: true},
		index.Source{Name: "waiting", Enabled: true},
	)
	s.Start(context.Background())

	slowID, err := s.Enqueue(context.Background(), "slow", queue.TriggerManual)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	waitingID, err := s.Enqueue(context.Background(), "waiting", queue.TriggerManual)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Shutdown(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	slow, err := s.Status(slowID)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, slow.State)
	assert.Equal(t, "job-slow", slow.JobID)

	waiting, err := s.Status(waitingID)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, waiting.State)
	assert.Equal(t, ErrStopped.Error(), waiting.Error)

	_, err = s.Enqueue(context.Background(), "slow", queue.TriggerManual)
	require.ErrorIs(t, err, ErrStopped)
}

func TestShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, newGatedRunner(), 1)
	require.NoError(t, s.Shutdown(context.Background()))
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFinishedTasksExpireAfterRetention(t *testing.T) {
	t.Parallel()

	store := memory.NewSourceStore()
	for _, name := range []string{"a", "b"} {
		_, err := store.UpsertSource(context.Background(), index.Source{Name: name, Enabled: true})
		require.NoError(t, err)
	}
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(Config{Concurrency: 1, QueueDepth: 4, TaskRetention: time.Hour}, newGatedRunner(), store, uuid.New(), clock, zap.NewNop())

	first, err := s.Enqueue(context.Background(), "a", queue.TriggerSchedule)
	require.NoError(t, err)
	s.MarkDone(first, "job-a", nil)

	clock.Advance(30 * time.Minute)
	second, err := s.Enqueue(context.Background(), "b", queue.TriggerSchedule)
	require.NoError(t, err)
	s.MarkDone(second, "job-b", nil)
	_, err = s.Status(first)
	require.NoError(t, err, "inside the window")

	clock.Advance(45 * time.Minute)
	third, err := s.Enqueue(context.Background(), "a", queue.TriggerSchedule)
	require.NoError(t, err)
	s.MarkDone(third, "", errors.New("boom"))

	_, err = s.Status(first)
	require.ErrorIs(t, err, ErrTaskNotFound)
	for _, id := range []string{second, third} {
		_, err = s.Status(id)
		require.NoError(t, err)
	}
	assert.Len(t, s.Tasks(), 2)
}
