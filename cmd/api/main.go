package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"extractd/internal/adapter/repo"
	"extractd/internal/http/handlers"
	httpapi "extractd/internal/http/httpapi"
	"extractd/internal/infra"
	"extractd/internal/infra/geoip"
	"extractd/internal/poller"
	"extractd/internal/runner/databricks"
	"extractd/internal/service"
	"extractd/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store, err := storage.NewFileStore(cfg.UploadBasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init upload storage")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
		resolver = nil
	}

	runner, err := databricks.NewClient(databricks.Options{
		Host:   cfg.DatabricksHost,
		Token:  cfg.DatabricksToken,
		JobID:  cfg.DatabricksJobID,
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init runner client")
	}

	registry := prometheus.NewRegistry()
	metrics := infra.NewMetrics(registry)

	jobs := repo.NewJobRepository(dbpool)
	documents := repo.NewDocumentRepository(dbpool)
	schemas := repo.NewSchemaRepository(dbpool)
	activity := repo.NewActivityRepository(dbpool)

	svc := service.NewJobService(service.Options{
		Jobs:          jobs,
		Documents:     documents,
		Schemas:       schemas,
		Activity:      activity,
		Runner:        runner,
		Store:         store,
		Logger:        logger,
		Metrics:       metrics,
		RunnerTimeout: cfg.RunnerTimeout,
		MaxFileSize:   cfg.UploadMaxSizeMB << 20,
		AllowedExts:   cfg.AllowedExtensions,
	})

	reconciler := poller.New(poller.Options{
		Jobs:     jobs,
		Runner:   runner,
		Activity: activity,
		Logger:   logger,
		Metrics:  metrics,
		Interval: cfg.PollInterval,
		Timeout:  cfg.RunnerTimeout,
	})
	reconciler.Start(ctx)

	app := &handlers.App{
		Service:        svc,
		Poller:         reconciler,
		Logger:         logger,
		MaxUploadBytes: cfg.UploadMaxSizeMB << 20,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		Registry:        registry,
		Resolver:        resolver,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	reconciler.Shutdown()

	if closer, ok := resolver.(interface{ Close() error }); ok && closer != nil {
		_ = closer.Close()
	}
	logger.Info().Msg("server stopped")
}
