// Package server wires configuration, logging, metrics, tracing, the
// fetcher, the result archive and the API router into one HTTP server.
package server
