// Package worker executes queued crawl tasks one at a time.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/metrics"
	"github.com/JakeFAU/mcpindex/internal/orchestrator"
	"github.com/JakeFAU/mcpindex/internal/queue"
)

// Source is the part of queue.Queue a worker pulls from.
type Source interface {
	Dequeue(ctx context.Context) (queue.Item, error)
}

// Runner crawls a single source.
type Runner interface {
	RunForSource(ctx context.Context, name string) (orchestrator.Result, error)
}

// Tracker records task state transitions.
type Tracker interface {
	MarkActive(taskID string)
	MarkDone(taskID, jobID string, err error)
}

// Worker consumes queue items and runs the crawl for each.
type Worker struct {
	id      int
	queue   Source
	runner  Runner
	tracker Tracker
	logger  *zap.Logger
}

// New constructs a Worker.
func New(id int, q Source, runner Runner, tracker Tracker, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		queue:   q,
		runner:  runner,
		tracker: tracker,
		logger:  logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming items until the queue closes or the context ends.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("task_id", item.TaskID), zap.String("source", item.Source))
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.tracker != nil {
		w.tracker.MarkActive(item.TaskID)
	}
	res, err := w.runner.RunForSource(ctx, item.Source)
	if err != nil {
		w.logger.Warn("task failed",
			zap.String("task_id", item.TaskID),
			zap.String("source", item.Source),
			zap.String("job_id", res.JobID),
			zap.Error(err),
		)
	} else {
		w.logger.Info("task completed",
			zap.String("task_id", item.TaskID),
			zap.String("source", item.Source),
			zap.String("job_id", res.JobID),
			zap.String("trigger", string(item.Trigger)),
		)
	}
	if w.tracker != nil {
		w.tracker.MarkDone(item.TaskID, res.JobID, err)
	}
}
