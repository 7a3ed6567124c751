package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/threadscope/internal/api/http"
	"github.com/GriffinCanCode/threadscope/internal/api/middleware"
	"github.com/GriffinCanCode/threadscope/internal/features"
	"github.com/GriffinCanCode/threadscope/internal/governor"
	"github.com/GriffinCanCode/threadscope/internal/infrastructure/config"
	"github.com/GriffinCanCode/threadscope/internal/infrastructure/logging"
	"github.com/GriffinCanCode/threadscope/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threadscope/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/threadscope/internal/runs"
	"github.com/GriffinCanCode/threadscope/internal/spantree"
	"github.com/GriffinCanCode/threadscope/internal/thread"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	handler  http.Handler
	governor *governor.Governor
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics

	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing ThreadScope server",
		zap.String("port", cfg.Server.Port),
		zap.String("langsmith_endpoint", cfg.LangSmith.Endpoint),
	)

	// Metrics first, every component reports into them
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	featureRegistry := features.Default()
	if cfg.Features.Path != "" {
		n, err := featureRegistry.LoadFiles(cfg.Features.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load features: %w", err)
		}
		logger.Info("Loaded feature files", zap.String("pattern", cfg.Features.Path), zap.Int("features", n))
	}

	gov := governor.New(governor.Options{
		BaseURL:  cfg.LangSmith.Endpoint,
		CacheTTL: cfg.Governor.CacheTTL,
		Spacing:  cfg.Governor.Spacing,
		Retry: resilience.Policy{
			MaxRetries: cfg.Governor.MaxRetries,
			Backoff:    resilience.Exponential(cfg.Governor.InitialBackoff, cfg.Governor.MaxBackoff),
		},
		Timeout: cfg.Governor.Timeout,
		Logger:  logger.Component("governor"),
	}).WithMetrics(metrics)

	creds := runs.EnvCredentials()
	if cfg.LangSmith.APIKey != "" && cfg.LangSmith.Project != "" {
		creds = runs.StaticCredentials(cfg.LangSmith.APIKey, cfg.LangSmith.Project)
	} else {
		logger.Warn("LangSmith credentials not configured, queries will fail until LANGSMITH_API_KEY and LANGSMITH_PROJECT are set")
	}

	client := runs.NewClient(gov, creds, featureRegistry, logger.Component("runs")).
		WithPageSize(cfg.LangSmith.PageSize).
		WithMetrics(metrics)
	builder := spantree.NewBuilder(logger.Component("spantree")).WithMetrics(metrics)
	assembler := thread.NewAssembler(client, featureRegistry, builder, logger.Component("thread"))

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(middleware.Recovery(logger.Component("http")))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Register routes
	apihttp.NewHandlers(assembler, featureRegistry, logger.Component("http")).
		WithMetrics(metrics).
		WithCacheStats(gov).
		Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	logger.Info("Server initialized successfully", zap.Int("features", featureRegistry.Len()))

	return &Server{
		handler:  gzhttp.GzipHandler(router),
		governor: gov,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP until ctx is done or the listener fails
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.purgeCache(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Close gracefully shuts down the server
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
	}

	// Sync logger before exit
	_ = s.logger.Sync()
	return nil
}

// purgeCache drops expired governor cache entries once per TTL
func (s *Server) purgeCache(ctx context.Context) {
	interval := s.config.Governor.CacheTTL
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.governor.Purge(); n > 0 {
				s.logger.Debug("Purged expired cache entries", zap.Int("entries", n))
			}
		}
	}
}
