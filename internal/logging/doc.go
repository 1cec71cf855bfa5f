// Package logging provides structured logging using uber/zap.
//
// Two output modes:
//   - Production: JSON lines on stderr for log shippers
//   - Development: colored console output
//
// Components take a *Logger and derive a named child so every line carries
// its origin (extraction, fetch, scrape, archive, server).
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	logger.Named("scrape").Info("Fetched content", zap.String("url", url))
//	logger.Error("Network error", zap.Error(err))
package logging
