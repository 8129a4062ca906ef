// Package ratelimit implements per-upstream token buckets for outbound admission control.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/mcpindex/internal/metrics"
)

// Well-known upstream bucket names.
const (
	UpstreamGitHub   = "github"
	UpstreamNPM      = "npm"
	UpstreamRegistry = "registry"
	UpstreamWeb      = "web"
)

// BucketConfig sizes one token bucket.
type BucketConfig struct {
	Capacity        int     `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`
}

// Config holds rate limiter configuration.
type Config struct {
	Default BucketConfig
	Buckets map[string]BucketConfig
}

// DefaultBuckets mirrors the published quotas of the upstreams the adapters talk to.
func DefaultBuckets() map[string]BucketConfig {
	return map[string]BucketConfig{
		UpstreamGitHub:   {Capacity: 30, RefillPerSecond: 30.0 / 60.0},
		UpstreamNPM:      {Capacity: 100, RefillPerSecond: 100.0 / 60.0},
		UpstreamRegistry: {Capacity: 60, RefillPerSecond: 1},
		UpstreamWeb:      {Capacity: 10, RefillPerSecond: 2},
	}
}

// Bucket is a token bucket bound to a single upstream.
type Bucket struct {
	name    string
	limiter *rate.Limiter
}

// NewBucket creates a bucket that starts full with capacity tokens and refills at
// refillPerSecond. A non-positive refill rate disables limiting.
func NewBucket(name string, capacity int, refillPerSecond float64) *Bucket {
	r := rate.Limit(refillPerSecond)
	if refillPerSecond <= 0 {
		r = rate.Inf
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Bucket{name: name, limiter: rate.NewLimiter(r, capacity)}
}

// Name returns the upstream this bucket guards.
func (b *Bucket) Name() string {
	return b.name
}

// Acquire blocks until n tokens are available or ctx is done.
func (b *Bucket) Acquire(ctx context.Context, n int) error {
	if n <= 0 {
		n = 1
	}
	start := time.Now()
	if err := b.limiter.WaitN(ctx, n); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(b.name, waited)
	}
	return nil
}

// Available reports the whole tokens currently in the bucket.
func (b *Bucket) Available() int {
	return int(b.limiter.Tokens())
}

// Registry manages one bucket per upstream. Buckets for unknown upstreams are
// created lazily from the default configuration.
type Registry struct {
	mu       sync.Mutex
	buckets  map[string]*Bucket
	configs  map[string]BucketConfig
	fallback BucketConfig
}

// New creates a Registry.
func New(cfg Config) *Registry {
	configs := make(map[string]BucketConfig, len(cfg.Buckets))
	for name, bc := range cfg.Buckets {
		configs[name] = bc
	}
	fallback := cfg.Default
	if fallback.Capacity <= 0 {
		fallback = BucketConfig{Capacity: 10, RefillPerSecond: 1}
	}
	return &Registry{
		buckets:  make(map[string]*Bucket),
		configs:  configs,
		fallback: fallback,
	}
}

// For returns the bucket for upstream, creating it on first use.
func (r *Registry) For(upstream string) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[upstream]; ok {
		return b
	}
	bc, ok := r.configs[upstream]
	if !ok {
		bc = r.fallback
	}
	b := NewBucket(upstream, bc.Capacity, bc.RefillPerSecond)
	r.buckets[upstream] = b
	return b
}
