// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the CLI and the admin server.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/adapter"
	"github.com/JakeFAU/mcpindex/internal/catalog"
	"github.com/JakeFAU/mcpindex/internal/clock/system"
	"github.com/JakeFAU/mcpindex/internal/config"
	"github.com/JakeFAU/mcpindex/internal/fetcher"
	"github.com/JakeFAU/mcpindex/internal/id/uuid"
	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/ingest"
	"github.com/JakeFAU/mcpindex/internal/metrics"
	"github.com/JakeFAU/mcpindex/internal/orchestrator"
	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/mcpindex/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/mcpindex/internal/publisher/pubsub"
	"github.com/JakeFAU/mcpindex/internal/scheduler"
	"github.com/JakeFAU/mcpindex/internal/scoring"
	"github.com/JakeFAU/mcpindex/internal/storage/gcs"
	"github.com/JakeFAU/mcpindex/internal/storage/local"
	"github.com/JakeFAU/mcpindex/internal/storage/memory"
	"github.com/JakeFAU/mcpindex/internal/storage/postgres"
)

// Stores groups the persistence backends.
type Stores struct {
	Entries index.EntryStore
	Sources index.SourceStore
	Jobs    index.JobStore
}

// App holds the shared, long-lived services. It is built once at startup and
// passed to the commands that need it.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Stores       Stores
	Blobs        index.BlobStore
	Publisher    index.Publisher
	Limits       *ratelimit.Registry
	Factory      *adapter.Factory
	Scorer       *scoring.Scorer
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler

	ping    func(context.Context) error
	closers []func() error
}

// New wires every service from cfg. It fails fast when a backend cannot be
// initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{Config: cfg, Logger: logger}

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initBlobs(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}

	clock := system.New()
	ids := uuid.New()
	a.Limits = ratelimit.New(cfg.RateLimiter())
	client := fetcher.New(nil, fetcher.Config{
		Retries:      cfg.Fetch.Retries,
		BaseDelay:    cfg.Fetch.BaseDelay,
		Timeout:      cfg.Fetch.Timeout,
		UserAgent:    cfg.Fetch.UserAgent,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	}, logger.Named("fetcher"))
	a.Factory = adapter.NewFactory(adapter.Deps{
		Fetcher:     client,
		Limits:      a.Limits,
		Logger:      logger.Named("adapter"),
		GitHubToken: cfg.GitHub.Token,
	})

	var scoreOpts []scoring.Option
	if a.Blobs != nil {
		scoreOpts = append(scoreOpts, scoring.WithSnapshots(a.Blobs, cfg.Blob.Prefix))
	}
	a.Scorer = scoring.New(a.Stores.Entries, clock, logger, scoreOpts...)

	orch, err := orchestrator.New(orchestrator.Dependencies{
		Sources:   a.Stores.Sources,
		Jobs:      a.Stores.Jobs,
		Factory:   a.Factory,
		Engine:    ingest.New(a.Stores.Entries, clock, logger),
		Scorer:    a.Scorer,
		Publisher: a.Publisher,
		Topic:     cfg.Publisher.Topic,
		Clock:     clock,
		IDs:       ids,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	a.Orchestrator = orch
	a.Scheduler = scheduler.New(scheduler.Config{
		Concurrency:   cfg.Scheduler.Concurrency,
		QueueDepth:    cfg.Scheduler.QueueDepth,
		TaskRetention: cfg.Scheduler.TaskRetention,
	}, orch, a.Stores.Sources, ids, clock, logger)

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("blob", cfg.Blob.Backend),
		zap.String("publisher", cfg.Publisher.Backend),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.Config.Storage.Backend {
	case config.BackendMemory, "":
		a.Stores = Stores{
			Entries: memory.NewEntryStore(),
			Sources: memory.NewSourceStore(),
			Jobs:    memory.NewJobStore(),
		}
		a.Logger.Info("using in-memory storage; the index is lost on exit")
		return nil
	case config.BackendPostgres:
		pg := a.Config.Storage.Postgres
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             pg.DSN,
			MaxConns:        pg.MaxConns,
			MinConns:        pg.MinConns,
			MaxConnLifetime: pg.MaxConnLifetime,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.ping = pool.Ping
		if pg.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}
		}
		entries, err := postgres.NewEntryStore(pool)
		if err != nil {
			return err
		}
		sources, err := postgres.NewSourceStore(pool)
		if err != nil {
			return err
		}
		jobs, err := postgres.NewJobStore(pool)
		if err != nil {
			return err
		}
		a.Stores = Stores{Entries: entries, Sources: sources, Jobs: jobs}
		a.Logger.Info("using postgres storage")
		return nil
	default:
		return fmt.Errorf("unknown storage backend: %s", a.Config.Storage.Backend)
	}
}

func (a *App) initBlobs(ctx context.Context) error {
	switch a.Config.Blob.Backend {
	case config.BackendNone, "":
		return nil
	case config.BackendMemory:
		a.Blobs = memory.NewBlobStore()
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: a.Config.Blob.Local.Dir})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.Blobs = store
	case config.BackendGCS:
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: a.Config.Blob.GCS.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Blobs = store
	default:
		return fmt.Errorf("unknown blob backend: %s", a.Config.Blob.Backend)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.Config.Publisher.Backend {
	case config.BackendNone, "":
		return nil
	case config.BackendMemory:
		a.Publisher = memorypublisher.New()
	case config.BackendPubSub:
		pub, err := pubsubpublisher.Dial(ctx, a.Config.Publisher.PubSub.ProjectID, a.Config.Publisher.Topic)
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.Publisher = pub
	default:
		return fmt.Errorf("unknown publisher backend: %s", a.Config.Publisher.Backend)
	}
	return nil
}

// SeedSources loads the configured sources file into the source store. With
// no file, the built-in defaults are seeded when the store is empty.
func (a *App) SeedSources(ctx context.Context) (int, error) {
	if path := a.Config.Sources.File; path != "" {
		sources, err := catalog.Load(path)
		if err != nil {
			return 0, err
		}
		return catalog.Seed(ctx, a.Stores.Sources, sources)
	}
	existing, err := a.Stores.Sources.ListSources(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list sources: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	return catalog.Seed(ctx, a.Stores.Sources, catalog.Defaults())
}

// Ready reports whether the storage backend is reachable.
func (a *App) Ready(ctx context.Context) error {
	if a.ping == nil {
		return nil
	}
	return a.ping(ctx)
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
}
