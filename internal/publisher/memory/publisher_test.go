package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mcpindex/internal/index"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	id1, err := pub.Publish(ctx, "crawl.completed", index.CrawlCompleted{JobID: "j1", Source: "npm"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	_, err = pub.Publish(ctx, "other", "payload")
	require.NoError(t, err)

	crawl := pub.Messages("crawl.completed")
	require.Len(t, crawl, 1)
	assert.Equal(t, "j1", crawl[0].Payload.(index.CrawlCompleted).JobID)
	assert.Len(t, pub.Messages(""), 2)

	crawl[0].Topic = "modified"
	assert.Equal(t, "crawl.completed", pub.Messages("")[0].Topic, "Messages returns a copy")
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("broker down"))
	_, err := pub.Publish(context.Background(), "t", 1)
	require.Error(t, err)
	assert.Empty(t, pub.Messages(""))

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "t", 1)
	require.NoError(t, err)
}
