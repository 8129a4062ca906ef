package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_ThirdAcquireWaitsForRefill(t *testing.T) {
	t.Parallel()

	b := NewBucket("test", 2, 2)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, b.Acquire(ctx, 1))
	require.NoError(t, b.Acquire(ctx, 1))
	firstTwo := time.Since(start)
	require.NoError(t, b.Acquire(ctx, 1))
	third := time.Since(start)

	assert.Less(t, firstTwo, 100*time.Millisecond)
	assert.GreaterOrEqual(t, third, 450*time.Millisecond)
}

func TestBucket_AcquireHonoursContext(t *testing.T) {
	t.Parallel()

	b := NewBucket("test", 1, 0.1)
	require.NoError(t, b.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Acquire(ctx, 1)
	require.Error(t, err)
}

func TestBucket_ZeroRefillIsUnlimited(t *testing.T) {
	t.Parallel()

	b := NewBucket("open", 1, 0)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, b.Acquire(ctx, 1))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRegistry_SeparateBucketsPerUpstream(t *testing.T) {
	t.Parallel()

	r := New(Config{
		Buckets: map[string]BucketConfig{
			"a": {Capacity: 1, RefillPerSecond: 1},
		},
		Default: BucketConfig{Capacity: 1, RefillPerSecond: 1},
	})
	ctx := context.Background()

	require.NoError(t, r.For("a").Acquire(ctx, 1))

	start := time.Now()
	require.NoError(t, r.For("b").Acquire(ctx, 1))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "upstream b must not be blocked by a")
	assert.Same(t, r.For("a"), r.For("a"))
	assert.Equal(t, "b", r.For("b").Name())
}

func TestDefaultBuckets(t *testing.T) {
	t.Parallel()

	buckets := DefaultBuckets()
	require.Contains(t, buckets, UpstreamGitHub)
	assert.Equal(t, 30, buckets[UpstreamGitHub].Capacity)
	assert.InDelta(t, 0.5, buckets[UpstreamGitHub].RefillPerSecond, 1e-9)
}
