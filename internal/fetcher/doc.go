// Package fetcher implements the rate-limited, retrying HTTP client that every
// source adapter uses to reach its upstream.
package fetcher
