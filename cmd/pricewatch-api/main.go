// Package main is the entry point for the pricewatch-api server.
// Bearer tokens are issued by an external identity provider; this service
// only verifies them.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmylchreest/pricewatch-api/internal/auth"
	"github.com/jmylchreest/pricewatch-api/internal/config"
	"github.com/jmylchreest/pricewatch-api/internal/database"
	"github.com/jmylchreest/pricewatch-api/internal/http/handlers"
	"github.com/jmylchreest/pricewatch-api/internal/http/mw"
	"github.com/jmylchreest/pricewatch-api/internal/http/routes"
	"github.com/jmylchreest/pricewatch-api/internal/logging"
	"github.com/jmylchreest/pricewatch-api/internal/repository"
	"github.com/jmylchreest/pricewatch-api/internal/service"
	"github.com/jmylchreest/pricewatch-api/internal/shutdown"
	"github.com/jmylchreest/pricewatch-api/internal/version"
	"github.com/jmylchreest/pricewatch-api/internal/worker"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting pricewatch-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(ctx, db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)

	services, err := service.NewServices(ctx, cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	if services.Cache != nil {
		defer func() { _ = services.Cache.Close() }()
	}

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	// Background refresh of tracked products
	refreshWorker := worker.New(services.Track, worker.Config{
		PollInterval: cfg.WorkerPollInterval,
		Concurrency:  cfg.WorkerConcurrency,
		BatchSize:    cfg.WorkerBatchSize,
	}, logger)
	refreshWorker.Start(ctx)

	if cfg.CleanupEnabled {
		go services.Cleanup.RunScheduledCleanup(ctx, cfg.CleanupMaxAge, cfg.CleanupArchiveMaxAge, cfg.CleanupInterval)
		logger.Info("cleanup service started",
			"max_age", cfg.CleanupMaxAge.String(),
			"archive_max_age", cfg.CleanupArchiveMaxAge.String(),
			"interval", cfg.CleanupInterval.String(),
		)
	}

	idle := shutdown.NewIdleMonitor(shutdown.Config{
		Timeout:      cfg.IdleTimeout,
		ExcludePaths: []string{"/healthz", "/readyz", "/metrics"},
		Busy:         refreshWorker.Busy,
		Logger:       logger,
	})

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(idle.Middleware)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.Timeout(mw.DefaultTimeoutConfig()))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-API-Version", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB)
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Global rate limit by IP; authenticated groups add per-user limits.
	router.Use(httprate.LimitByIP(100, time.Minute))

	router.Use(middleware.Throttle(100))
	router.Use(mw.APIVersion())
	router.Use(mw.Cache(mw.DefaultCacheConfig()))

	h := &routes.Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(db).Readyz,
		Search:      handlers.NewSearchHandler(services.Search),
		Track:       handlers.NewTrackHandler(services.Track),
		Usage:       handlers.NewUsageHandler(services.User),
	}

	humaConfig := routes.NewHumaConfig(cfg.BaseURL)
	groupConfig := routes.GroupConfig(humaConfig)

	// Public API serves the OpenAPI document for every group.
	routes.RegisterPublic(humachi.New(router, humaConfig), h)

	// Probes are hidden operations; metrics is plain chi.
	routes.RegisterProbes(humachi.New(router, groupConfig), h)
	router.Handle("/metrics", promhttp.Handler())

	userLimits := mw.DefaultRateLimitConfig()
	userLimits.UserRequestsPerMinute = cfg.SearchRateLimit
	// One limiter for both groups so a user has a single per-minute budget.
	userLimit := mw.RateLimitByUser(userLimits)

	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(verifier, services.User))
		r.Use(userLimit)
		routes.RegisterProtected(humachi.New(r, groupConfig), h)
	})

	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(verifier, services.User))
		r.Use(userLimit)
		r.Use(mw.SearchBurstLimit(mw.SearchBurstConfig{
			Limit:  cfg.SearchBurstLimit,
			Window: cfg.SearchBurstWindow,
		}))
		routes.RegisterSearch(humachi.New(r, groupConfig), h)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 6 * time.Minute, // longer than the extended request timeout
		IdleTimeout:  120 * time.Second,
	}

	idle.Start()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		select {
		case sig := <-sigChan:
			logger.Info("shutting down server", "signal", sig.String())
		case <-idle.Done():
			logger.Info("shutting down idle server")
		}

		idle.Stop()
		cancel()
		refreshWorker.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "upstream_enabled", cfg.UpstreamEnabled())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
