// Package metrics exposes Prometheus collectors for the index service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal         *prometheus.CounterVec
	fetchRetriesTotal          *prometheus.CounterVec
	rateLimitWaitSeconds       *prometheus.HistogramVec
	ingestItemsTotal           *prometheus.CounterVec
	crawlJobsTotal             *prometheus.CounterVec
	crawlDurationSeconds       *prometheus.HistogramVec
	scoringDurationSeconds     prometheus.Histogram
	schedulerQueueDepth        prometheus.Gauge
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpindex_fetch_requests_total",
				Help: "Total outbound fetch attempts, labeled by upstream and outcome.",
			},
			[]string{"upstream", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpindex_fetch_retries_total",
				Help: "Total fetch retries, labeled by upstream.",
			},
			[]string{"upstream"},
		)

		rateLimitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpindex_ratelimit_wait_seconds",
				Help:    "Histogram of token bucket wait durations.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"upstream"},
		)

		ingestItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpindex_ingest_items_total",
				Help: "Total candidates ingested, labeled by source and result.",
			},
			[]string{"source", "result"},
		)

		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpindex_crawl_jobs_total",
				Help: "Total crawl jobs finished, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		crawlDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpindex_crawl_duration_seconds",
				Help:    "Histogram of crawl run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800},
			},
			[]string{"source"},
		)

		scoringDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mcpindex_scoring_duration_seconds",
				Help:    "Histogram of full re-scoring durations.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60},
			},
		)

		schedulerQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpindex_scheduler_queue_depth",
				Help: "Number of crawl tasks waiting for a worker.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpindex_active_workers",
				Help: "Number of workers currently running a crawl.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpindex_http_requests_total",
				Help: "Total admin API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpindex_http_request_duration_seconds",
				Help:    "Histogram of admin API latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt outcome ("ok", "http_4xx", "http_5xx", "error", ...).
func ObserveFetch(upstream, outcome string) {
	Init()
	fetchRequestsTotal.WithLabelValues(upstream, outcome).Inc()
}

// ObserveRetry increments the retry counter for upstream.
func ObserveRetry(upstream string) {
	Init()
	fetchRetriesTotal.WithLabelValues(upstream).Inc()
}

// ObserveRateLimitWait records how long a caller blocked on a token bucket.
func ObserveRateLimitWait(upstream string, d time.Duration) {
	Init()
	rateLimitWaitSeconds.WithLabelValues(upstream).Observe(d.Seconds())
}

// ObserveIngest increments the ingestion counter ("added", "updated", "error").
func ObserveIngest(source, result string) {
	Init()
	ingestItemsTotal.WithLabelValues(source, result).Inc()
}

// ObserveCrawl records the terminal status and duration of a crawl job.
func ObserveCrawl(source, status string, d time.Duration) {
	Init()
	crawlJobsTotal.WithLabelValues(source, status).Inc()
	crawlDurationSeconds.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveScoring records the duration of a full re-score.
func ObserveScoring(d time.Duration) {
	Init()
	scoringDurationSeconds.Observe(d.Seconds())
}

// SetQueueDepth sets the pending task gauge.
func SetQueueDepth(n int) {
	Init()
	schedulerQueueDepth.Set(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
