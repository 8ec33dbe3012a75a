// Package api hosts the status HTTP server that runs alongside a crawl.
// Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /progress for live counters of the running crawl.
//   - GET /progress/subtitles for per-subtitle state from the tree checkpoint.
package api
