// Package main is the entry point for the facility scraper HTTP service.
//
// The server exposes extraction over caller-supplied HTML, full scrapes of
// configured facility sites, run history from the result archive, and
// Prometheus metrics.
//
// Configuration:
//   - Environment variables (PORT, SCRAPER_CONFIG, ARCHIVE_ENABLED, ...)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8000 -config config.toml -archive
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
