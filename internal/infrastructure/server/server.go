package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/facility-scraper/internal/api/http"
	"github.com/GriffinCanCode/facility-scraper/internal/api/middleware"
	"github.com/GriffinCanCode/facility-scraper/internal/archive"
	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
	"github.com/GriffinCanCode/facility-scraper/internal/fetch"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/config"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/facility-scraper/internal/logging"
	"github.com/GriffinCanCode/facility-scraper/internal/output"
	"github.com/GriffinCanCode/facility-scraper/internal/scrape"
	"github.com/GriffinCanCode/facility-scraper/internal/site"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	scraper *scrape.Scraper
	store   *archive.Store
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return newServer(ctx, cfg, logger)
}

func newServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	sites, err := LoadSites(cfg.Scraper)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded site configuration",
		zap.Int("sites", len(sites.Sites)),
		zap.String("primary_library", sites.PrimaryLibrary),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("facility-scraper", logger)

	fetcher := fetch.NewHTTPFetcher(fetch.Config{
		UserAgent:         cfg.Fetch.UserAgent,
		RetryWaitMin:      cfg.Fetch.RetryWaitMin,
		RetryWaitMax:      cfg.Fetch.RetryWaitMax,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Burst:             cfg.Fetch.Burst,
		MaxBodyBytes:      extraction.MaxHTMLSize,
		BreakerFailures:   cfg.Fetch.BreakerFailures,
		BreakerTimeout:    cfg.Fetch.BreakerTimeout,
	}, logger, fetch.WithMetrics(metrics))

	opts := []scrape.Option{
		scrape.WithMetrics(metrics),
		scrape.WithTracer(tracer),
		scrape.WithOutputDir(cfg.Output.Dir),
	}

	var (
		store   *archive.Store
		history api.History
	)
	if cfg.Archive.Enabled {
		if err := ensureDir(cfg.Archive.DSN); err != nil {
			tracer.Close()
			return nil, err
		}
		store, err = archive.Open(ctx, cfg.Archive.DSN)
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		opts = append(opts, scrape.WithArchive(store))
		history = store
		logger.Info("Result archive enabled", zap.String("dsn", cfg.Archive.DSN))
	}

	scraper := scrape.New(sites, fetcher, logger, opts...)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := api.NewHandlers(scraper, history, metrics, logger, format, api.WithCircuits(fetcher))
	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		http:    &http.Server{Addr: cfg.Server.Addr(), Handler: router},
		scraper: scraper,
		store:   store,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// LoadSites reads the site rule files named by cfg
func LoadSites(cfg config.ScraperConfig) (*site.Config, error) {
	if cfg.SitesGlob != "" {
		return site.LoadGlob(cfg.SitesRoot, cfg.SitesGlob)
	}
	return site.Load(cfg.ConfigPath)
}

// ensureDir creates the parent directory of a file-backed DSN
func ensureDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// Close releases the archive and flushes traces and logs
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")
	s.tracer.Close()

	var err error
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil {
			s.logger.Error("Failed to close archive", zap.Error(cerr))
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
	}
	_ = s.logger.Sync()
	return err
}
