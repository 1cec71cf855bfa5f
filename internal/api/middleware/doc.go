// Package middleware provides gin middleware for CORS, per-client rate
// limiting and request logging.
package middleware
