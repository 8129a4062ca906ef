package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/mcpindex/internal/index"
)

// SourceStore keeps crawl sources keyed by name.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[string]index.Source
}

// NewSourceStore constructs an empty SourceStore.
func NewSourceStore() *SourceStore {
	return &SourceStore{sources: make(map[string]index.Source)}
}

// FindByName implements index.SourceStore.
func (s *SourceStore) FindByName(_ context.Context, name string) (index.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[name]
	if !ok {
		return index.Source{}, fmt.Errorf("source %q: %w", name, index.ErrSourceNotFound)
	}
	return src, nil
}

// ListSources returns sources ordered by name.
func (s *SourceStore) ListSources(_ context.Context, enabledOnly bool) ([]index.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]index.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if enabledOnly && !src.Enabled {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpsertSource inserts or replaces the source with the same name, keeping its
// ID and last run time.
func (s *SourceStore) UpsertSource(_ context.Context, src index.Source) (index.Source, error) {
	if src.Name == "" {
		return index.Source{}, fmt.Errorf("upsert source: empty name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sources[src.Name]; ok {
		src.ID = prev.ID
		if src.LastRunAt == nil {
			src.LastRunAt = prev.LastRunAt
		}
	} else if src.ID == "" {
		src.ID = uuid.NewString()
	}
	s.sources[src.Name] = src
	return src, nil
}

// MarkRun stamps the last run time of the source with sourceID.
func (s *SourceStore) MarkRun(_ context.Context, sourceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, src := range s.sources {
		if src.ID == sourceID {
			ts := at
			src.LastRunAt = &ts
			s.sources[name] = src
			return nil
		}
	}
	return fmt.Errorf("mark run %s: %w", sourceID, index.ErrSourceNotFound)
}
