package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mcpindex/internal/index"
)

func TestEntryStoreUpsertKeepsIdentity(t *testing.T) {
	t.Parallel()

	store := NewEntryStore()
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := store.UpsertEntry(ctx, index.Entry{Slug: "files", Name: "Files", Stars: 1, UpdatedAt: t0})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, t0, first.CreatedAt)
	require.NoError(t, store.UpdateQualityScore(ctx, first.ID, 42))

	exists, err := store.ExistsBySlug(ctx, "files")
	require.NoError(t, err)
	assert.True(t, exists)

	second, err := store.UpsertEntry(ctx, index.Entry{Slug: "files", Name: "Files v2", Stars: 9, UpdatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, t0, second.CreatedAt)
	assert.Equal(t, 1, store.Len())

	got, err := store.GetBySlug(ctx, "files")
	require.NoError(t, err)
	assert.Equal(t, "Files v2", got.Name)
	assert.Equal(t, 9, got.Stars)
	assert.Equal(t, 42, got.QualityScore, "crawls do not reset scores")
	assert.Equal(t, t0.Add(time.Hour), got.UpdatedAt)

	_, err = store.UpsertEntry(ctx, index.Entry{})
	require.Error(t, err)
	_, err = store.GetBySlug(ctx, "missing")
	require.ErrorIs(t, err, index.ErrNotFound)
}

func TestEntryStoreReplaceCapabilities(t *testing.T) {
	t.Parallel()

	store := NewEntryStore()
	ctx := context.Background()
	entry, err := store.UpsertEntry(ctx, index.Entry{Slug: "files"})
	require.NoError(t, err)

	require.NoError(t, store.ReplaceCapabilities(ctx, entry.ID, index.Capabilities{
		Tools:     []index.Tool{{Name: "read", InputSchema: json.RawMessage(`{}`)}, {Name: "write"}},
		Resources: []index.Resource{{URI: "file:///"}},
	}))

	require.NoError(t, store.ReplaceCapabilities(ctx, entry.ID, index.Capabilities{
		Tools: []index.Tool{},
	}))
	caps, err := store.Capabilities(ctx, entry.ID)
	require.NoError(t, err)
	assert.Empty(t, caps.Tools, "an empty slice wipes the kind")
	assert.Len(t, caps.Resources, 1, "a nil slice leaves the kind alone")

	inputs, err := store.ListForScoring(ctx)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, 0, inputs[0].ToolCount)
	assert.Equal(t, 1, inputs[0].ResourceCount)

	require.ErrorIs(t, store.ReplaceCapabilities(ctx, "nope", index.Capabilities{}), index.ErrNotFound)
	require.ErrorIs(t, store.UpdateQualityScore(ctx, "nope", 1), index.ErrNotFound)
}

func TestEntryStoreListForScoringOrdersBySlug(t *testing.T) {
	t.Parallel()

	store := NewEntryStore()
	ctx := context.Background()
	for _, slug := range []string{"zeta", "alpha", "mid"} {
		_, err := store.UpsertEntry(ctx, index.Entry{Slug: slug})
		require.NoError(t, err)
	}
	inputs, err := store.ListForScoring(ctx)
	require.NoError(t, err)
	got := make([]string, 0, len(inputs))
	for _, in := range inputs {
		got = append(got, in.Entry.Slug)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, got)
}
