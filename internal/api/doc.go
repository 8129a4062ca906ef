// Package api hosts the admin HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sources/{name}/run and /v1/sources/run to queue crawls.
//   - GET /v1/tasks/{id} and /v1/jobs/{id} to follow them.
//   - POST /v1/scores/recompute to rescore the index.
package api
