package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mcpindex/internal/queue"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan queue.Item, 1)
	go func() {
		item, err := q.Dequeue(context.Background())
		if err == nil {
			result <- item
		}
	}()

	require.NoError(t, q.Enqueue(context.Background(), queue.Item{TaskID: "t1", Source: "npm"}))
	select {
	case got := <-result:
		assert.Equal(t, "t1", got.TaskID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueTryEnqueueFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.TryEnqueue(queue.Item{TaskID: "a"}))
	assert.Equal(t, 1, q.Len())
	require.ErrorIs(t, q.TryEnqueue(queue.Item{TaskID: "b"}), queue.ErrFull)
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewQueue(1).Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), queue.Item{TaskID: "primed"}))
	require.ErrorIs(t, full.Enqueue(ctx, queue.Item{}), context.Canceled)
}

func TestQueueCloseAndDrain(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.TryEnqueue(queue.Item{TaskID: "left"}))
	q.Close()
	q.Close()

	_, err := q.Dequeue(context.Background())
	require.ErrorIs(t, err, queue.ErrClosed, "closed queues stop pulls even with items buffered")
	require.ErrorIs(t, q.TryEnqueue(queue.Item{}), queue.ErrClosed)
	require.ErrorIs(t, q.Enqueue(context.Background(), queue.Item{}), queue.ErrClosed)

	left := q.Drain()
	require.Len(t, left, 1)
	assert.Equal(t, "left", left[0].TaskID)
	assert.Empty(t, q.Drain())
}
