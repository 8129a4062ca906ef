// Package scheduler turns cron schedules and manual triggers into queued
// crawl tasks and runs them on a fixed worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/dispatcher"
	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/metrics"
	"github.com/JakeFAU/mcpindex/internal/queue"
	"github.com/JakeFAU/mcpindex/internal/queue/memory"
	"github.com/JakeFAU/mcpindex/internal/worker"
)

var (
	// ErrAlreadyQueued is returned when the source already has a queued or
	// active task.
	ErrAlreadyQueued = errors.New("source already queued")
	// ErrTaskNotFound is returned by Status for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrQueueFull is returned when the task queue has no room.
	ErrQueueFull = errors.New("task queue full")
	// ErrStopped is returned by Enqueue after Shutdown.
	ErrStopped = errors.New("scheduler stopped")
)

// TaskState is the lifecycle of a queued crawl.
type TaskState string

// Task states.
const (
	TaskQueued    TaskState = "queued"
	TaskActive    TaskState = "active"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Task is the tracked state of one crawl request.
type Task struct {
	ID         string        `json:"id"`
	Source     string        `json:"source"`
	Trigger    queue.Trigger `json:"trigger"`
	State      TaskState     `json:"state"`
	JobID      string        `json:"job_id,omitempty"`
	Error      string        `json:"error,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Config sizes the worker pool and queue. Finished tasks are forgotten once
// they are older than TaskRetention.
type Config struct {
	Concurrency   int
	QueueDepth    int
	TaskRetention time.Duration
}

// Scheduler owns the cron table, the task queue and the worker pool.
type Scheduler struct {
	cron       *cron.Cron
	queue      *memory.Queue
	dispatcher *dispatcher.Dispatcher
	sources    index.SourceStore
	ids        index.IDGenerator
	clock      index.Clock
	logger     *zap.Logger
	retention  time.Duration

	mu      sync.Mutex
	tasks   map[string]*Task
	pending map[string]string
	entries map[string]cron.EntryID
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Scheduler. Concurrency defaults to 2 and TaskRetention to
// 24 hours.
func New(cfg Config, runner worker.Runner, sources index.SourceStore, ids index.IDGenerator, clock index.Clock, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.TaskRetention <= 0 {
		cfg.TaskRetention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	s := &Scheduler{
		queue:     memory.NewQueue(cfg.QueueDepth),
		sources:   sources,
		ids:       ids,
		clock:     clock,
		logger:    logger,
		retention: cfg.TaskRetention,
		tasks:     make(map[string]*Task),
		pending:   make(map[string]string),
		entries:   make(map[string]cron.EntryID),
	}
	cl := cronLogger{logger: logger.Sugar()}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	workers := make([]*worker.Worker, 0, cfg.Concurrency)
	for i := range cfg.Concurrency {
		workers = append(workers, worker.New(i+1, s.queue, runner, s, logger))
	}
	s.dispatcher = dispatcher.New(s.queue, workers)
	return s
}

// ScheduleAll replaces the recurring table with one crawl:{name} entry per
// enabled source that has a schedule. Sources with an unparsable schedule are
// skipped with a warning. It returns the number of entries registered.
func (s *Scheduler) ScheduleAll(ctx context.Context) (int, error) {
	sources, err := s.sources.ListSources(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("list sources: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	for _, src := range sources {
		if src.Schedule == "" {
			continue
		}
		name := src.Name
		id, err := s.cron.AddFunc(src.Schedule, func() { s.fire(name) })
		if err != nil {
			s.logger.Warn("invalid source schedule", zap.String("source", name), zap.String("schedule", src.Schedule), zap.Error(err))
			continue
		}
		s.entries[entryName(name)] = id
		s.logger.Info("scheduled source", zap.String("source", name), zap.String("schedule", src.Schedule))
	}
	return len(s.entries), nil
}

// Entries returns the registered recurring entry names with their next run.
func (s *Scheduler) Entries() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

func entryName(source string) string {
	return "crawl:" + source
}

func (s *Scheduler) fire(source string) {
	_, err := s.Enqueue(context.Background(), source, queue.TriggerSchedule)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyQueued):
		s.logger.Debug("skipping scheduled run, previous run still pending", zap.String("source", source))
	default:
		s.logger.Warn("scheduled enqueue failed", zap.String("source", source), zap.Error(err))
	}
}

// Enqueue requests a one-off crawl of sourceName and returns the task id.
func (s *Scheduler) Enqueue(ctx context.Context, sourceName string, trigger queue.Trigger) (string, error) {
	if _, err := s.sources.FindByName(ctx, sourceName); err != nil {
		return "", err
	}
	taskID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrStopped
	}
	if existing, ok := s.pending[sourceName]; ok {
		return existing, fmt.Errorf("%s: %w", sourceName, ErrAlreadyQueued)
	}
	item := queue.Item{TaskID: taskID, Source: sourceName, Trigger: trigger, EnqueuedAt: s.clock.Now()}
	if err := s.dispatcher.Enqueue(item); err != nil {
		if errors.Is(err, queue.ErrFull) {
			return "", ErrQueueFull
		}
		return "", err
	}
	s.tasks[taskID] = &Task{
		ID:         taskID,
		Source:     sourceName,
		Trigger:    trigger,
		State:      TaskQueued,
		EnqueuedAt: item.EnqueuedAt,
	}
	s.pending[sourceName] = taskID
	s.logger.Info("task queued", zap.String("task_id", taskID), zap.String("source", sourceName), zap.String("trigger", string(trigger)))
	return taskID, nil
}

// EnqueueAll queues every enabled source, skipping ones already pending.
func (s *Scheduler) EnqueueAll(ctx context.Context, trigger queue.Trigger) (map[string]string, error) {
	sources, err := s.sources.ListSources(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	out := make(map[string]string, len(sources))
	for _, src := range sources {
		id, err := s.Enqueue(ctx, src.Name, trigger)
		if err != nil && !errors.Is(err, ErrAlreadyQueued) {
			return out, err
		}
		out[src.Name] = id
	}
	return out, nil
}

// Status returns a copy of the task state.
func (s *Scheduler) Status(taskID string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%s: %w", taskID, ErrTaskNotFound)
	}
	return *task, nil
}

// Tasks returns every tracked task, newest first.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.After(out[j].EnqueuedAt) })
	return out
}

// MarkActive implements worker.Tracker.
func (s *Scheduler) MarkActive(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	metrics.SetQueueDepth(s.dispatcher.Depth())
	if task, ok := s.tasks[taskID]; ok {
		now := s.clock.Now()
		task.State = TaskActive
		task.StartedAt = &now
	}
}

// MarkDone implements worker.Tracker.
func (s *Scheduler) MarkDone(taskID, jobID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(taskID, jobID, err)
}

func (s *Scheduler) finishLocked(taskID, jobID string, err error) {
	task, ok := s.tasks[taskID]
	if !ok {
		return
	}
	now := s.clock.Now()
	task.JobID = jobID
	task.FinishedAt = &now
	if err != nil {
		task.State = TaskFailed
		task.Error = err.Error()
	} else {
		task.State = TaskCompleted
	}
	if s.pending[task.Source] == taskID {
		delete(s.pending, task.Source)
	}
	s.pruneLocked(now)
}

// pruneLocked drops finished tasks whose FinishedAt is past the retention
// window.
func (s *Scheduler) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.retention)
	for id, task := range s.tasks {
		if task.FinishedAt != nil && task.FinishedAt.Before(cutoff) {
			delete(s.tasks, id)
		}
	}
}

// Start runs cron and the worker pool. Workers outlive ctx cancellation and
// are stopped by Shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.stopped {
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.cron.Start()
	go func(done chan struct{}) {
		defer close(done)
		s.dispatcher.Run(runCtx)
	}(s.done)
	s.logger.Info("scheduler started", zap.Int("entries", len(s.entries)))
}

// Shutdown stops cron, closes the queue and waits for in-flight tasks until
// ctx ends, at which point running crawls are canceled and end failed.
// Tasks still queued are marked failed.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	s.mu.Lock()
	s.stopped = true
	s.queue.Close()
	for _, item := range s.queue.Drain() {
		s.finishLocked(item.TaskID, "", ErrStopped)
	}
	done, cancel := s.done, s.cancel
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		cancel()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
	}
	s.logger.Warn("shutdown deadline reached, canceling in-flight crawls")
	cancel()
	<-done
	return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
