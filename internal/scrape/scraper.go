package scrape

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/facility-scraper/internal/archive"
	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
	"github.com/GriffinCanCode/facility-scraper/internal/fetch"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/facility-scraper/internal/input"
	"github.com/GriffinCanCode/facility-scraper/internal/logging"
	"github.com/GriffinCanCode/facility-scraper/internal/output"
	"github.com/GriffinCanCode/facility-scraper/internal/site"
)

// Archive is the subset of the result store the pipeline needs
type Archive interface {
	Latest(ctx context.Context, url string) (*archive.Record, error)
	Save(ctx context.Context, rec archive.Record) (string, error)
}

// Options controls one scrape
type Options struct {
	// OutputPath writes the formatted result to this file
	OutputPath string
	// Organize writes under the scraper's output directory using the
	// date/domain layout when OutputPath is empty
	Organize bool
	Format   output.Format
}

// Response is the outcome of one scrape. Error is set only for critical
// failures that stopped the pipeline; field-level failures live in
// FieldStatus.
type Response struct {
	Success        bool                        `json:"success"`
	URL            string                      `json:"url,omitempty"`
	SiteID         string                      `json:"site_id,omitempty"`
	PriorityFields map[string]extraction.Value `json:"-"`
	ExtraMetadata  map[string]extraction.Value `json:"-"`
	Metadata       extraction.Metadata         `json:"-"`
	FieldStatus    extraction.FieldStatus      `json:"-"`
	Output         string                      `json:"-"`
	OutputPath     string                      `json:"output_path,omitempty"`
	ArchiveID      string                      `json:"archive_id,omitempty"`
	Changes        []archive.Change            `json:"changes,omitempty"`
	Error          string                      `json:"error,omitempty"`
	// Err is the typed critical error behind Error
	Err error `json:"-"`
}

// Result reassembles the extraction result carried by the response
func (r Response) Result() extraction.Result {
	return extraction.Result{
		Success:        r.Success,
		PriorityFields: r.PriorityFields,
		ExtraMetadata:  r.ExtraMetadata,
		FieldStatus:    r.FieldStatus,
		Metadata:       r.Metadata,
	}
}

// Scraper runs the scrape pipeline for configured sites
type Scraper struct {
	sites     *site.Config
	fetcher   fetch.Fetcher
	engine    *extraction.Engine
	store     Archive
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	logger    *logging.Logger
	outputDir string
	now       func() time.Time
}

// Option configures a Scraper
type Option func(*Scraper)

// WithArchive records every completed scrape and diffs it against the
// previous run of the same URL
func WithArchive(a Archive) Option {
	return func(s *Scraper) { s.store = a }
}

// WithMetrics records extraction metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

// WithTracer records a span per scrape
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Scraper) { s.tracer = t }
}

// WithEngine replaces the extraction engine
func WithEngine(e *extraction.Engine) Option {
	return func(s *Scraper) { s.engine = e }
}

// WithOutputDir sets the root for organized output files
func WithOutputDir(dir string) Option {
	return func(s *Scraper) { s.outputDir = dir }
}

// New creates a scraper over a loaded site configuration
func New(sites *site.Config, fetcher fetch.Fetcher, logger *logging.Logger, opts ...Option) *Scraper {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scraper{
		sites:     sites,
		fetcher:   fetcher,
		logger:    logger.Named("scrape"),
		outputDir: "output",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = extraction.NewEngine(logger)
	}
	return s
}

// Sites returns the site configuration
func (s *Scraper) Sites() *site.Config {
	return s.sites
}

// ScrapeFacility normalizes url, finds its site rules, fetches the page,
// extracts every field, formats the result and optionally writes and
// archives it.
func (s *Scraper) ScrapeFacility(ctx context.Context, rawURL string, opts Options) Response {
	if s.tracer == nil {
		return s.scrape(ctx, rawURL, opts)
	}
	span, ctx := s.tracer.StartSpan(ctx, "scrape")
	resp := s.scrape(ctx, rawURL, opts)
	span.SetTag("url", resp.URL)
	if resp.SiteID != "" {
		span.SetTag("site", resp.SiteID)
	}
	if resp.Err != nil {
		span.SetError(resp.Err)
	}
	s.tracer.Finish(span)
	return resp
}

func (s *Scraper) scrape(ctx context.Context, rawURL string, opts Options) Response {
	start := s.now()
	resp := Response{URL: rawURL}

	if s.sites == nil {
		return s.fail(resp, "config", errors.New("scraper configuration not loaded"))
	}

	normalized, err := input.Normalize(rawURL)
	if err != nil {
		return s.fail(resp, "url", err)
	}
	resp.URL = normalized
	s.logger.Info("Normalized URL", zap.String("url", normalized))

	st, err := s.sites.Lookup(normalized)
	if err != nil {
		return s.fail(resp, "lookup", err)
	}
	resp.SiteID = st.ID
	s.logger.Info("Found site configuration", zap.String("site", st.ID), zap.String("site_type", st.SiteType))

	html, err := s.fetcher.Fetch(ctx, normalized, fetch.Options{Timeout: st.Timeout(), MaxRetries: st.MaxRetries})
	if err != nil {
		return s.fail(resp, "fetch", err)
	}

	result, err := s.engine.ExtractFields(html, st.Rules())
	if err != nil {
		return s.fail(resp, "extract", err)
	}
	result = result.WithDuration(s.now().Sub(start))
	s.record(result)
	resp = fill(resp, result)

	s.logger.Info("Extraction complete",
		zap.String("site", st.ID),
		zap.Int("extracted", len(result.FieldStatus.Extracted)),
		zap.Int("failed", len(result.FieldStatus.Failed)),
		zap.Int("not_found", len(result.FieldStatus.NotFound)),
	)

	format := opts.Format
	if format == "" {
		format = output.FormatTOML
	}
	content, err := output.Render(result, format)
	if err != nil {
		return s.fail(resp, "format", err)
	}
	resp.Output = content

	path := opts.OutputPath
	if path == "" && opts.Organize {
		path = output.OrganizePath(s.outputDir, input.Domain(normalized), result.Metadata.Timestamp, format)
	}
	if path != "" {
		written, err := output.WriteFile(content, path)
		if err != nil {
			return s.fail(resp, "write", err)
		}
		if err := output.VerifyFile(written); err != nil {
			return s.fail(resp, "write", err)
		}
		resp.OutputPath = written
		s.logger.Info("Output written", zap.String("path", written))
	}

	if s.store != nil {
		s.archiveRun(ctx, &resp, result, string(format))
	}

	s.logger.Info("Scraping complete",
		zap.String("url", normalized),
		zap.Bool("success", resp.Success),
		zap.Duration("duration", result.Metadata.Duration),
	)
	return resp
}

// ExtractHTML runs extraction only, on HTML the caller already has
func (s *Scraper) ExtractHTML(html string, rules extraction.SiteRules) (extraction.Result, error) {
	start := s.now()
	result, err := s.engine.ExtractFields(html, rules)
	if err != nil {
		return extraction.Result{}, err
	}
	result = result.WithDuration(s.now().Sub(start))
	s.record(result)
	return result, nil
}

// archiveRun failures are logged; they never fail a finished scrape
func (s *Scraper) archiveRun(ctx context.Context, resp *Response, result extraction.Result, format string) {
	prev, err := s.store.Latest(ctx, resp.URL)
	if err != nil && !errors.Is(err, archive.ErrNotFound) {
		s.logger.Warn("Archive lookup failed", zap.String("url", resp.URL), zap.Error(err))
	}

	rec := archive.NewRecord(resp.URL, result, resp.Output, format, resp.OutputPath)
	id, err := s.store.Save(ctx, rec)
	if s.metrics != nil {
		s.metrics.RecordArchiveWrite(err == nil)
	}
	if err != nil {
		s.logger.Warn("Archive write failed", zap.String("url", resp.URL), zap.Error(err))
		return
	}
	resp.ArchiveID = id

	if prev != nil {
		resp.Changes = archive.DetectChanges(*prev, rec)
		for _, c := range resp.Changes {
			if c.Severity != archive.SeverityInfo {
				s.logger.Warn("Change detected",
					zap.String("url", resp.URL),
					zap.String("type", c.Type),
					zap.String("description", c.Description),
				)
			}
		}
	}
}

func (s *Scraper) record(result extraction.Result) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordExtraction(result.Metadata.SiteType, result.Success, result.Metadata.Duration, monitoring.FieldCounts{
		Extracted: len(result.FieldStatus.Extracted),
		Failed:    len(result.FieldStatus.Failed),
		NotFound:  len(result.FieldStatus.NotFound),
	})
}

func (s *Scraper) fail(resp Response, phase string, err error) Response {
	s.logger.Error("Scrape failed",
		zap.String("phase", phase),
		zap.String("url", resp.URL),
		zap.Error(err),
	)
	resp.Success = false
	resp.Error = err.Error()
	resp.Err = err
	return resp
}

func fill(resp Response, r extraction.Result) Response {
	resp.Success = r.Success
	resp.PriorityFields = r.PriorityFields
	resp.ExtraMetadata = r.ExtraMetadata
	resp.Metadata = r.Metadata
	resp.FieldStatus = r.FieldStatus
	return resp
}
