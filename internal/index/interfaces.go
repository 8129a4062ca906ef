package index

import (
	"context"
	"io"
	"time"
)

// EntryStore persists indexed entries and their capabilities.
type EntryStore interface {
	// ExistsBySlug reports whether an entry with slug is already indexed.
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	// UpsertEntry inserts entry or overwrites the existing row with the same slug.
	// The returned entry carries the stored ID.
	UpsertEntry(ctx context.Context, entry Entry) (Entry, error)
	// ReplaceCapabilities atomically replaces every supplied kind for entryID.
	ReplaceCapabilities(ctx context.Context, entryID string, caps Capabilities) error
	// GetBySlug returns the entry for slug or ErrNotFound.
	GetBySlug(ctx context.Context, slug string) (Entry, error)
	// Capabilities returns the stored capabilities for entryID.
	Capabilities(ctx context.Context, entryID string) (Capabilities, error)
	// ListForScoring returns all entries with capability counts.
	ListForScoring(ctx context.Context) ([]ScoringInput, error)
	// UpdateQualityScore overwrites the score for entryID.
	UpdateQualityScore(ctx context.Context, entryID string, score int) error
}

// SourceStore persists crawl source configuration.
type SourceStore interface {
	FindByName(ctx context.Context, name string) (Source, error)
	ListSources(ctx context.Context, enabledOnly bool) ([]Source, error)
	UpsertSource(ctx context.Context, source Source) (Source, error)
	MarkRun(ctx context.Context, sourceID string, at time.Time) error
}

// JobStore persists crawl job lifecycle state.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	StartJob(ctx context.Context, jobID string, at time.Time) error
	CompleteJob(ctx context.Context, jobID string, stats Stats, at time.Time) error
	FailJob(ctx context.Context, jobID string, errs []string, at time.Time) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
