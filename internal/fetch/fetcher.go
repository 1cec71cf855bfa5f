package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/facility-scraper/internal/logging"
)

// Fetcher downloads the HTML of one page
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts Options) (string, error)
}

// Options is the per-site fetch policy
type Options struct {
	Timeout    time.Duration // per attempt
	MaxRetries int
}

// Config configures an HTTPFetcher
type Config struct {
	UserAgent         string
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64 // zero disables client-side limiting
	Burst             int
	MaxBodyBytes      int64
	// BreakerFailures opens a host's circuit after this many consecutive
	// failed fetches; zero disables the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns the fetch defaults: 1s, 2s, 4s... backoff capped at
// 30s and bodies capped at the extraction size limit.
func DefaultConfig() Config {
	return Config{
		UserAgent:       "facility-scraper/1.0",
		RetryWaitMin:    1 * time.Second,
		RetryWaitMax:    30 * time.Second,
		Burst:           1,
		MaxBodyBytes:    extraction.MaxHTMLSize,
		BreakerFailures: 5,
		BreakerTimeout:  60 * time.Second,
	}
}

// DefaultOptions mirrors the site defaults
func DefaultOptions() Options {
	return Options{Timeout: 30 * time.Second, MaxRetries: 3}
}

// HTTPFetcher fetches pages with retry, rate limiting and a per-host
// circuit breaker
type HTTPFetcher struct {
	cfg       Config
	transport http.RoundTripper
	limiter   *rate.Limiter
	breakers  *resilience.Group
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// Option configures an HTTPFetcher
type Option func(*HTTPFetcher)

// WithTransport replaces the HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(f *HTTPFetcher) { f.transport = rt }
}

// WithMetrics records fetch attempts and errors
func WithMetrics(m *monitoring.Metrics) Option {
	return func(f *HTTPFetcher) { f.metrics = m }
}

// NewHTTPFetcher creates a fetcher. A nil logger discards output.
func NewHTTPFetcher(cfg Config, logger *logging.Logger, opts ...Option) *HTTPFetcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = extraction.MaxHTMLSize
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = time.Second
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = cfg.RetryWaitMin
	}

	f := &HTTPFetcher{
		cfg:       cfg,
		transport: retryablehttp.NewClient().HTTPClient.Transport,
		limiter:   newLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:    logger.Named("fetch"),
	}
	if cfg.BreakerFailures > 0 {
		f.breakers = resilience.NewGroup(resilience.Settings{
			FailureThreshold: cfg.BreakerFailures,
			Cooldown:         cfg.BreakerTimeout,
			// A 4xx means the host is up
			IsSuccessful: func(err error) bool {
				var ne *NetworkError
				return err == nil || (errors.As(err, &ne) && ne.Status >= 400 && ne.Status < 500)
			},
			OnStateChange: func(host string, from, to resilience.State) {
				f.logger.Warn("Circuit state changed",
					zap.String("host", host),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Fetch downloads rawURL. Connection errors and 5xx responses are retried
// up to opts.MaxRetries times; 4xx responses fail immediately.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", &NetworkError{URL: rawURL, Err: fmt.Errorf("invalid URL: %w", err)}
	}
	host := u.Hostname()

	if f.breakers == nil {
		return f.fetch(ctx, rawURL, host, opts)
	}

	var body string
	err = f.breakers.Do(host, func() error {
		var ferr error
		body, ferr = f.fetch(ctx, rawURL, host, opts)
		return ferr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		f.recordError(host, "circuit_open")
		return "", &NetworkError{URL: rawURL, Err: err}
	}
	return body, err
}

// Circuits reports the breaker state per host fetched so far
func (f *HTTPFetcher) Circuits() map[string]string {
	if f.breakers == nil {
		return nil
	}
	states := f.breakers.States()
	out := make(map[string]string, len(states))
	for host, st := range states {
		out[host] = st.String()
	}
	return out
}

func (f *HTTPFetcher) fetch(ctx context.Context, rawURL, host string, opts Options) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", &NetworkError{URL: rawURL, Err: fmt.Errorf("rate limit wait: %w", err), Timeout: isTimeoutCause(err)}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &NetworkError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	f.logger.Info("Fetching page",
		zap.String("url", rawURL),
		zap.Duration("timeout", opts.Timeout),
		zap.Int("max_retries", opts.MaxRetries),
	)

	// Exhausted 5xx retries come back with both the last response and an error
	resp, err := f.client(host, opts).Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			ne := &NetworkError{URL: rawURL, Status: resp.StatusCode}
			f.recordError(host, reason(ne))
			f.logger.Error("HTTP error", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
			return "", ne
		}
	}
	if err != nil {
		ne := &NetworkError{URL: rawURL, Err: err, Timeout: isTimeoutCause(err)}
		f.recordError(host, reason(ne))
		f.logger.Error("Fetch failed", zap.String("url", rawURL), zap.Error(err))
		return "", ne
	}

	body, err := f.readBody(resp.Body)
	if err != nil {
		ne := &NetworkError{URL: rawURL, Err: err, Timeout: isTimeoutCause(err)}
		f.recordError(host, reason(ne))
		return "", ne
	}

	f.logger.Info("Fetched page", zap.String("url", rawURL), zap.Int("bytes", len(body)))
	return string(body), nil
}

// client builds a retrying client for one call so per-site retry and
// timeout settings never leak between concurrent fetches.
func (f *HTTPFetcher) client(host string, opts Options) *retryablehttp.Client {
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &retryablehttp.Client{
		HTTPClient:   &http.Client{Transport: f.transport, Timeout: opts.Timeout},
		Logger:       leveledLogger{f.logger.Sugar()},
		RetryWaitMin: f.cfg.RetryWaitMin,
		RetryWaitMax: f.cfg.RetryWaitMax,
		RetryMax:     retries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		RequestLogHook: func(_ retryablehttp.Logger, _ *http.Request, attempt int) {
			if f.metrics != nil {
				f.metrics.RecordFetchAttempt(host)
			}
			if attempt > 0 {
				f.logger.Warn("Retrying fetch", zap.String("host", host), zap.Int("attempt", attempt))
			}
		},
	}
}

func (f *HTTPFetcher) readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.cfg.MaxBodyBytes)
	}
	if !isMarkup(body) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, mimetype.Detect(body).String())
	}
	return body, nil
}

// isMarkup accepts anything mimetype places under text/plain, which covers
// HTML, XHTML and XML.
func isMarkup(body []byte) bool {
	for mt := mimetype.Detect(body); mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return true
		}
	}
	return false
}

func (f *HTTPFetcher) recordError(host, why string) {
	if f.metrics != nil {
		f.metrics.RecordFetchError(host, why)
	}
}

func reason(e *NetworkError) string {
	switch {
	case e.Timeout:
		return "timeout"
	case e.Status >= 500:
		return "server_error"
	case e.Status >= 400:
		return "client_error"
	case errors.Is(e.Err, ErrBodyTooLarge):
		return "too_large"
	case errors.Is(e.Err, ErrUnsupportedContent):
		return "content_type"
	default:
		return "connection"
	}
}

// leveledLogger adapts zap to retryablehttp's LeveledLogger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
