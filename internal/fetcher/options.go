package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Acquirer admits one outbound call. *ratelimit.Bucket satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, n int) error
}

type request struct {
	retries   int
	baseDelay time.Duration
	timeout   time.Duration
	limiter   Acquirer
	header    http.Header
}

// Option customises a single fetch.
type Option func(*request)

// WithRetries overrides the retry budget. Zero disables retries.
func WithRetries(n int) Option {
	return func(r *request) {
		if n >= 0 {
			r.retries = n
		}
	}
}

// WithBaseDelay overrides the linear backoff unit.
func WithBaseDelay(d time.Duration) Option {
	return func(r *request) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *request) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLimiter makes the call wait on a token bucket before the first attempt.
func WithLimiter(l Acquirer) Option {
	return func(r *request) {
		r.limiter = l
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) Option {
	return func(r *request) {
		r.header.Set(key, value)
	}
}
