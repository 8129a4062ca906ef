// Package ingest drains an adapter's candidate sequence into the index.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/adapter"
	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/metrics"
)

// Engine upserts candidates one at a time and tallies the outcome.
type Engine struct {
	store  index.EntryStore
	clock  index.Clock
	logger *zap.Logger
}

// New constructs an Engine.
func New(store index.EntryStore, clock index.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, clock: clock, logger: logger.Named("ingest")}
}

// Run consumes every candidate a yields. Item failures and enumeration
// failures are recorded in the returned stats; only context cancellation is
// returned as an error.
func (e *Engine) Run(ctx context.Context, a adapter.Adapter) (index.Stats, error) {
	var stats index.Stats
	source := a.Name()
	logger := e.logger.With(zap.String("source", source))

	for candidate, err := range a.Candidates(ctx) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, fmt.Errorf("ingest %s: %w", source, ctxErr)
			}
			logger.Error("candidate enumeration failed", zap.Error(err))
			stats.Errors = append(stats.Errors, "crawl error: "+err.Error())
			break
		}
		stats.Found++
		added, err := e.ingest(ctx, candidate)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, fmt.Errorf("ingest %s: %w", source, ctxErr)
			}
			logger.Warn("ingest item failed", zap.String("slug", candidate.Entry.Slug), zap.Error(err))
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %s", candidate.Entry.Slug, err))
			metrics.ObserveIngest(source, "error")
			continue
		}
		if added {
			stats.Added++
			metrics.ObserveIngest(source, "added")
		} else {
			stats.Updated++
			metrics.ObserveIngest(source, "updated")
		}
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("ingest %s: %w", source, err)
	}

	logger.Info("ingest finished",
		zap.Int("found", stats.Found),
		zap.Int("added", stats.Added),
		zap.Int("updated", stats.Updated),
		zap.Int("errors", len(stats.Errors)),
	)
	return stats, nil
}

func (e *Engine) ingest(ctx context.Context, candidate index.Candidate) (bool, error) {
	entry := candidate.Entry
	if entry.Slug == "" {
		return false, errors.New("empty slug")
	}
	exists, err := e.store.ExistsBySlug(ctx, entry.Slug)
	if err != nil {
		return false, fmt.Errorf("lookup: %w", err)
	}
	now := e.clock.Now()
	entry.LastCrawledAt = now
	entry.UpdatedAt = now
	stored, err := e.store.UpsertEntry(ctx, entry)
	if err != nil {
		return false, fmt.Errorf("upsert: %w", err)
	}
	if candidate.Capabilities.Supplied() {
		if err := e.store.ReplaceCapabilities(ctx, stored.ID, candidate.Capabilities); err != nil {
			return false, fmt.Errorf("capabilities: %w", err)
		}
	}
	return !exists, nil
}
