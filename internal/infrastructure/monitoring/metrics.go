package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scraper"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Extraction metrics
	ExtractionsTotal   *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec
	FieldOutcomes      *prometheus.CounterVec

	// Fetch metrics
	FetchAttempts *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec

	// Archive metrics
	ArchiveWrites *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for the JSON health view
type MetricsSnapshot struct {
	TotalRequests    int64
	TotalErrors      int64
	TotalExtractions int64
	FailedExtraction int64
	TotalDuration    float64 // sum of all request durations
	RequestCount     int64   // count for averaging
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		ExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extractions_total",
				Help:      "Total number of extraction runs",
			},
			[]string{"site_type", "success"},
		),
		ExtractionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_duration_seconds",
				Help:      "Extraction duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"site_type"},
		),
		FieldOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "field_outcomes_total",
				Help:      "Field extraction outcomes by status",
			},
			[]string{"site_type", "status"},
		),

		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Total number of HTTP fetch attempts, retries included",
			},
			[]string{"host"},
		),
		FetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Total number of failed fetches",
			},
			[]string{"host", "reason"},
		),

		ArchiveWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_writes_total",
				Help:      "Total number of archive writes",
			},
			[]string{"status"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// FieldCounts is the per-status field tally of one extraction
type FieldCounts struct {
	Extracted int
	Failed    int
	NotFound  int
}

// RecordExtraction records one extraction run and its field outcomes
func (m *Metrics) RecordExtraction(siteType string, success bool, duration time.Duration, fields FieldCounts) {
	if siteType == "" {
		siteType = "unknown"
	}
	m.ExtractionsTotal.WithLabelValues(siteType, boolLabel(success)).Inc()
	m.ExtractionDuration.WithLabelValues(siteType).Observe(duration.Seconds())
	m.FieldOutcomes.WithLabelValues(siteType, "extracted").Add(float64(fields.Extracted))
	m.FieldOutcomes.WithLabelValues(siteType, "failed").Add(float64(fields.Failed))
	m.FieldOutcomes.WithLabelValues(siteType, "not_found").Add(float64(fields.NotFound))

	m.mu.Lock()
	m.snapshot.TotalExtractions++
	if !success {
		m.snapshot.FailedExtraction++
	}
	m.mu.Unlock()
}

// RecordFetchAttempt counts one outbound request attempt
func (m *Metrics) RecordFetchAttempt(host string) {
	m.FetchAttempts.WithLabelValues(host).Inc()
}

// RecordFetchError counts a fetch that finally failed
func (m *Metrics) RecordFetchError(host, reason string) {
	m.FetchErrors.WithLabelValues(host, reason).Inc()
}

// RecordArchiveWrite counts an archive write by outcome
func (m *Metrics) RecordArchiveWrite(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ArchiveWrites.WithLabelValues(status).Inc()
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeSeconds returns seconds since the collector was created
func (m *Metrics) UptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
