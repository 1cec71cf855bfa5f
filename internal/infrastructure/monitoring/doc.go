/*
Package monitoring provides Prometheus metrics for the scraper.

# Overview

Each Metrics value owns a private registry, so several collectors can live in
one process (tests build one per case). It tracks HTTP API traffic,
extraction runs and their field outcomes, outbound fetch attempts, and
archive writes.

# Usage

	metrics := monitoring.NewMetrics()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "fablab")
	// ... extract ...
	timer.Stop(true, monitoring.FieldCounts{Extracted: 3})
*/
package monitoring
