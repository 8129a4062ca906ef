package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/mcpindex/internal/index"
)

// EntryStore keeps entries keyed by slug together with their capabilities.
type EntryStore struct {
	mu      sync.RWMutex
	entries map[string]index.Entry
	slugs   map[string]string
	caps    map[string]index.Capabilities
}

// NewEntryStore constructs an empty EntryStore.
func NewEntryStore() *EntryStore {
	return &EntryStore{
		entries: make(map[string]index.Entry),
		slugs:   make(map[string]string),
		caps:    make(map[string]index.Capabilities),
	}
}

// ExistsBySlug implements index.EntryStore.
func (s *EntryStore) ExistsBySlug(_ context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[slug]
	return ok, nil
}

// UpsertEntry inserts entry or overwrites the crawled fields of the existing
// row. ID, CreatedAt and QualityScore survive an overwrite.
func (s *EntryStore) UpsertEntry(_ context.Context, entry index.Entry) (index.Entry, error) {
	if entry.Slug == "" {
		return index.Entry{}, fmt.Errorf("upsert entry: empty slug")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	if prev, ok := s.entries[entry.Slug]; ok {
		entry.ID = prev.ID
		entry.CreatedAt = prev.CreatedAt
		entry.QualityScore = prev.QualityScore
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return index.Entry{}, fmt.Errorf("upsert entry: %w", err)
		}
		entry.ID = id.String()
		entry.CreatedAt = entry.UpdatedAt
		s.slugs[entry.ID] = entry.Slug
	}
	entry.Metadata = cloneMap(entry.Metadata)
	s.entries[entry.Slug] = entry
	return entry, nil
}

// ReplaceCapabilities swaps every non-nil kind in caps for entryID.
func (s *EntryStore) ReplaceCapabilities(_ context.Context, entryID string, caps index.Capabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slugs[entryID]; !ok {
		return fmt.Errorf("replace capabilities %s: %w", entryID, index.ErrNotFound)
	}
	cur := s.caps[entryID]
	if caps.Tools != nil {
		cur.Tools = slices.Clone(caps.Tools)
	}
	if caps.Resources != nil {
		cur.Resources = slices.Clone(caps.Resources)
	}
	if caps.Prompts != nil {
		cur.Prompts = slices.Clone(caps.Prompts)
	}
	s.caps[entryID] = cur
	return nil
}

// GetBySlug implements index.EntryStore.
func (s *EntryStore) GetBySlug(_ context.Context, slug string) (index.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[slug]
	if !ok {
		return index.Entry{}, fmt.Errorf("entry %q: %w", slug, index.ErrNotFound)
	}
	entry.Metadata = cloneMap(entry.Metadata)
	return entry, nil
}

// Capabilities implements index.EntryStore.
func (s *EntryStore) Capabilities(_ context.Context, entryID string) (index.Capabilities, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.slugs[entryID]; !ok {
		return index.Capabilities{}, fmt.Errorf("capabilities %s: %w", entryID, index.ErrNotFound)
	}
	cur := s.caps[entryID]
	return index.Capabilities{
		Tools:     slices.Clone(cur.Tools),
		Resources: slices.Clone(cur.Resources),
		Prompts:   slices.Clone(cur.Prompts),
	}, nil
}

// ListForScoring returns every entry ordered by slug.
func (s *EntryStore) ListForScoring(_ context.Context) ([]index.ScoringInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]index.ScoringInput, 0, len(s.entries))
	for _, entry := range s.entries {
		caps := s.caps[entry.ID]
		entry.Metadata = cloneMap(entry.Metadata)
		out = append(out, index.ScoringInput{
			Entry:         entry,
			ToolCount:     len(caps.Tools),
			ResourceCount: len(caps.Resources),
			PromptCount:   len(caps.Prompts),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry.Slug < out[j].Entry.Slug })
	return out, nil
}

// UpdateQualityScore implements index.EntryStore.
func (s *EntryStore) UpdateQualityScore(_ context.Context, entryID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slug, ok := s.slugs[entryID]
	if !ok {
		return fmt.Errorf("update score %s: %w", entryID, index.ErrNotFound)
	}
	entry := s.entries[slug]
	entry.QualityScore = score
	s.entries[slug] = entry
	return nil
}

// Len reports the number of stored entries.
func (s *EntryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
