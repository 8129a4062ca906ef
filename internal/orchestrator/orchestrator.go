// Package orchestrator runs one crawl per source and records it as a job.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/adapter"
	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/metrics"
	"github.com/JakeFAU/mcpindex/internal/scoring"
)

// AdapterFactory builds the adapter for a source.
type AdapterFactory interface {
	New(src index.Source) (adapter.Adapter, error)
}

// Ingester drains an adapter into the index.
type Ingester interface {
	Run(ctx context.Context, a adapter.Adapter) (index.Stats, error)
}

// Scorer rescores the index after a crawl.
type Scorer interface {
	ScoreAll(ctx context.Context) ([]scoring.Result, error)
}

// Result describes one source run.
type Result struct {
	JobID      string      `json:"job_id,omitempty"`
	SourceName string      `json:"source"`
	Stats      index.Stats `json:"stats"`
	Err        error       `json:"-"`
}

// Dependencies wires an Orchestrator. Scorer and Publisher are optional.
type Dependencies struct {
	Sources   index.SourceStore
	Jobs      index.JobStore
	Factory   AdapterFactory
	Engine    Ingester
	Scorer    Scorer
	Publisher index.Publisher
	Topic     string
	Clock     index.Clock
	IDs       index.IDGenerator
	Logger    *zap.Logger
}

// Orchestrator coordinates source lookup, the job lifecycle, ingestion and
// the follow-up scoring pass.
type Orchestrator struct {
	deps   Dependencies
	logger *zap.Logger
}

// New validates deps and constructs an Orchestrator.
func New(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Sources == nil:
		return nil, errors.New("source store is required")
	case deps.Jobs == nil:
		return nil, errors.New("job store is required")
	case deps.Factory == nil:
		return nil, errors.New("adapter factory is required")
	case deps.Engine == nil:
		return nil, errors.New("ingest engine is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, logger: logger.Named("orchestrator")}, nil
}

// RunForSource crawls the named source. A missing source returns
// index.ErrSourceNotFound without creating a job; every other failure marks
// the job failed and is returned.
func (o *Orchestrator) RunForSource(ctx context.Context, name string) (Result, error) {
	res := Result{SourceName: name}
	src, err := o.deps.Sources.FindByName(ctx, name)
	if err != nil {
		return res, err
	}

	jobID, err := o.deps.IDs.NewID()
	if err != nil {
		return res, fmt.Errorf("generate job id: %w", err)
	}
	res.JobID = jobID
	logger := o.logger.With(zap.String("source", name), zap.String("job_id", jobID))

	if err := o.deps.Jobs.CreateJob(ctx, index.Job{
		ID:         jobID,
		SourceID:   src.ID,
		SourceName: src.Name,
		Status:     index.JobStatusPending,
		CreatedAt:  o.deps.Clock.Now(),
	}); err != nil {
		return res, fmt.Errorf("create job: %w", err)
	}
	start := time.Now()
	if err := o.deps.Jobs.StartJob(ctx, jobID, o.deps.Clock.Now()); err != nil {
		return res, o.fail(ctx, logger, src, jobID, start, fmt.Errorf("start job: %w", err))
	}
	logger.Info("crawl started", zap.String("type", string(src.Type)))

	a, err := o.deps.Factory.New(src)
	if err != nil {
		return res, o.fail(ctx, logger, src, jobID, start, err)
	}
	stats, err := o.deps.Engine.Run(ctx, a)
	res.Stats = stats
	if err != nil {
		return res, o.fail(ctx, logger, src, jobID, start, err)
	}

	// Terminal writes must land even if ctx was canceled after ingest returned.
	finishCtx := context.WithoutCancel(ctx)
	completedAt := o.deps.Clock.Now()
	if err := o.deps.Jobs.CompleteJob(finishCtx, jobID, stats, completedAt); err != nil {
		return res, o.fail(ctx, logger, src, jobID, start, fmt.Errorf("complete job: %w", err))
	}
	metrics.ObserveCrawl(src.Name, string(index.JobStatusCompleted), time.Since(start))
	logger.Info("crawl completed",
		zap.Int("found", stats.Found),
		zap.Int("added", stats.Added),
		zap.Int("updated", stats.Updated),
		zap.Int("errors", len(stats.Errors)),
	)

	if err := o.deps.Sources.MarkRun(finishCtx, src.ID, completedAt); err != nil {
		logger.Warn("mark source run failed", zap.Error(err))
	}
	if o.deps.Scorer != nil {
		if _, err := o.deps.Scorer.ScoreAll(finishCtx); err != nil {
			logger.Warn("post-crawl scoring failed", zap.Error(err))
		}
	}
	o.publish(finishCtx, logger, index.CrawlCompleted{
		JobID:       jobID,
		Source:      src.Name,
		Found:       stats.Found,
		Added:       stats.Added,
		Updated:     stats.Updated,
		Errors:      stats.Errors,
		CompletedAt: completedAt,
	})
	return res, nil
}

// RunAll crawls every enabled source in turn. A failing source is reported in
// its Result and does not stop the loop.
func (o *Orchestrator) RunAll(ctx context.Context) ([]Result, error) {
	sources, err := o.deps.Sources.ListSources(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	results := make([]Result, 0, len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			results = append(results, Result{SourceName: src.Name, Err: ctx.Err()})
			continue
		}
		res, err := o.RunForSource(ctx, src.Name)
		if err != nil {
			res.Err = err
			o.logger.Error("source run failed", zap.String("source", src.Name), zap.Error(err))
		}
		results = append(results, res)
	}
	return results, nil
}

// fail records cause on the job using a context that ignores cancellation,
// so the job never stays running.
func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, src index.Source, jobID string, start time.Time, cause error) error {
	finishCtx := context.WithoutCancel(ctx)
	if err := o.deps.Jobs.FailJob(finishCtx, jobID, []string{cause.Error()}, o.deps.Clock.Now()); err != nil {
		logger.Error("mark job failed", zap.Error(err))
	}
	metrics.ObserveCrawl(src.Name, string(index.JobStatusFailed), time.Since(start))
	logger.Error("crawl failed", zap.Error(cause))
	return cause
}

func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, event index.CrawlCompleted) {
	if o.deps.Publisher == nil {
		return
	}
	id, err := o.deps.Publisher.Publish(ctx, o.deps.Topic, event)
	if err != nil {
		logger.Warn("publish crawl event failed", zap.Error(err))
		return
	}
	logger.Debug("crawl event published", zap.String("message_id", id))
}
