package http

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/facility-scraper/internal/archive"
	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
	"github.com/GriffinCanCode/facility-scraper/internal/fetch"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/facility-scraper/internal/input"
	"github.com/GriffinCanCode/facility-scraper/internal/logging"
	"github.com/GriffinCanCode/facility-scraper/internal/output"
	"github.com/GriffinCanCode/facility-scraper/internal/scrape"
	"github.com/GriffinCanCode/facility-scraper/internal/site"
)

// History lists archived runs for a URL
type History interface {
	ListForURL(ctx context.Context, url string, since time.Time) ([]archive.Record, error)
}

// CircuitReporter reports outbound circuit breaker state per host
type CircuitReporter interface {
	Circuits() map[string]string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	scraper  *scrape.Scraper
	history  History
	metrics  *monitoring.Metrics
	circuits CircuitReporter
	logger   *logging.Logger
	format   output.Format
	started  time.Time
}

// HandlerOption configures Handlers
type HandlerOption func(*Handlers)

// WithCircuits reports breaker state in /health
func WithCircuits(c CircuitReporter) HandlerOption {
	return func(h *Handlers) { h.circuits = c }
}

// NewHandlers creates a new handler set. history and metrics may be nil.
func NewHandlers(scraper *scrape.Scraper, history History, metrics *monitoring.Metrics, logger *logging.Logger, format output.Format, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	if format == "" {
		format = output.FormatTOML
	}
	h := &Handlers{
		scraper: scraper,
		history: history,
		metrics: metrics,
		logger:  logger.Named("api"),
		format:  format,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the API routes
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	v1.GET("/sites", h.ListSites)
	v1.POST("/extract", h.Extract)
	v1.POST("/scrape", h.Scrape)
	v1.GET("/history", h.History)
}

// ExtractRequest runs the rules of a configured site, or inline rules, over
// HTML supplied by the caller
type ExtractRequest struct {
	HTML     string            `json:"html" binding:"required"`
	SiteID   string            `json:"site_id"`
	SiteType string            `json:"site_type"`
	Priority map[string]string `json:"priority"`
	Extra    map[string]string `json:"extra"`
	Format   string            `json:"format"`
}

// ScrapeRequest scrapes one configured facility URL
type ScrapeRequest struct {
	URL      string `json:"url" binding:"required"`
	Organize bool   `json:"organize"`
	Format   string `json:"format"`
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "facility-scraper",
		"version": "1.0.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":         "healthy",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"sites":          len(h.scraper.Sites().Sites),
		"archive":        gin.H{"enabled": h.history != nil},
	}
	if h.circuits != nil {
		open := []string{}
		for host, state := range h.circuits.Circuits() {
			if state != "closed" {
				open = append(open, host)
			}
		}
		slices.Sort(open)
		body["open_circuits"] = open
	}
	if h.metrics != nil {
		snap := h.metrics.Snapshot()
		body["stats"] = gin.H{
			"requests":           snap.TotalRequests,
			"errors":             snap.TotalErrors,
			"extractions":        snap.TotalExtractions,
			"failed_extractions": snap.FailedExtraction,
		}
	}
	c.JSON(http.StatusOK, body)
}

// ListSites lists the configured sites
func (h *Handlers) ListSites(c *gin.Context) {
	sites := h.scraper.Sites().Sites
	out := make([]gin.H, 0, len(sites))
	for _, s := range sites {
		out = append(out, gin.H{
			"id":              s.ID,
			"url_pattern":     s.URLPattern,
			"site_type":       s.SiteType,
			"description":     s.Description,
			"priority_fields": len(s.Priority),
			"extra_fields":    len(s.Extra),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sites": out})
}

// Extract handles extraction over caller-supplied HTML
func (h *Handlers) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid extract request: " + err.Error()})
		return
	}
	format, err := h.resolveFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rules := extraction.SiteRules{SiteType: req.SiteType, Priority: req.Priority, Extra: req.Extra}
	if req.SiteID != "" {
		s, err := h.scraper.Sites().Site(req.SiteID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		rules = s.Rules()
	}
	if len(rules.Priority)+len(rules.Extra) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provide site_id or at least one priority or extra rule"})
		return
	}
	if dups := rules.Overlap(); len(dups) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Fields in both priority and extra: " + strings.Join(dups, ", ")})
		return
	}

	result, err := h.scraper.ExtractHTML(req.HTML, rules)
	if err != nil {
		h.logger.Warn("Extract request failed", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	h.render(c, result, format)
}

// Scrape handles a full fetch-and-extract of one facility
func (h *Handlers) Scrape(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scrape request: " + err.Error()})
		return
	}
	format, err := h.resolveFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := h.scraper.ScrapeFacility(c.Request.Context(), req.URL, scrape.Options{
		Organize: req.Organize,
		Format:   format,
	})
	if resp.Err != nil {
		c.JSON(statusFor(resp.Err), gin.H{
			"success": false,
			"url":     resp.URL,
			"error":   resp.Error,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     resp.Success,
		"url":         resp.URL,
		"site_id":     resp.SiteID,
		"result":      output.NewDocument(resp.Result()),
		"output_path": resp.OutputPath,
		"archive_id":  resp.ArchiveID,
		"changes":     resp.Changes,
	})
}

// History lists archived runs for ?url= over the last ?days= (default 30)
func (h *Handlers) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive is not enabled"})
		return
	}
	normalized, err := input.Normalize(c.Query("url"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	days := 30
	if d, ok := c.GetQuery("days"); ok {
		if n, err := parsePositive(d); err == nil {
			days = n
		}
	}

	recs, err := h.history.ListForURL(c.Request.Context(), normalized, time.Now().AddDate(0, 0, -days))
	if err != nil {
		h.logger.Error("History lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read archive"})
		return
	}

	runs := make([]gin.H, 0, len(recs))
	for _, r := range recs {
		runs = append(runs, gin.H{
			"id":              r.ID,
			"run_at":          r.RunAt.Format(time.RFC3339),
			"success":         r.Success,
			"duration_ms":     r.Duration.Milliseconds(),
			"extracted_count": r.ExtractedCount,
			"failed_count":    r.FailedCount,
			"not_found_count": r.NotFoundCount,
			"content_hash":    r.ContentHash,
		})
	}
	c.JSON(http.StatusOK, gin.H{"url": normalized, "runs": runs})
}

func (h *Handlers) resolveFormat(name string) (output.Format, error) {
	if name == "" {
		return h.format, nil
	}
	return output.ParseFormat(name)
}

// render writes JSON directly and the other formats as text
func (h *Handlers) render(c *gin.Context, result extraction.Result, format output.Format) {
	if format == output.FormatJSON {
		c.JSON(http.StatusOK, output.NewDocument(result))
		return
	}
	body, err := output.Render(result, format)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	contentType := "application/toml; charset=utf-8"
	if format == output.FormatYAML {
		contentType = "application/yaml; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, []byte(body))
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	var (
		verr *input.ValidationError
		cerr *site.ConfigurationError
		nerr *fetch.NetworkError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &cerr):
		return http.StatusNotFound
	case errors.As(err, &nerr):
		if nerr.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case extraction.IsParsingError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
