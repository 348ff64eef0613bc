package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/arbledger/service/config"
	"github.com/brojonat/arbledger/service/explorer"
	"github.com/brojonat/arbledger/service/metrics"
	natspkg "github.com/brojonat/arbledger/service/nats"
	"github.com/brojonat/arbledger/service/prices"
	"github.com/brojonat/arbledger/service/temporal"
	"github.com/brojonat/arbledger/service/tokens"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.MustLoad()

	logger := setupLogger(cfg)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"explorer", cfg.ExplorerAPIURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := metrics.NewMetrics(registry)

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	api := explorer.NewHTTPAPI(explorer.HTTPOptions{
		BaseURL: cfg.ExplorerAPIURL,
		APIKey:  cfg.ExplorerAPIKey,
		HTTPClient: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: metrics.InstrumentedTransport(metricsCollector, http.DefaultTransport),
		},
		Metrics: metricsCollector,
		Logger:  logger,
	})

	store, closeStore, err := prices.OpenStore(ctx, cfg.PriceCacheDatabaseURL, cfg.PriceCachePath)
	if err != nil {
		logger.Error("failed to open price store", "error", err)
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("opened price store", "store", store.Name())

	workerConfig := temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Fetcher:           explorer.NewClient(api, cfg.ExplorerPageSize, metricsCollector, logger),
		Prices:            prices.NewCache(ctx, store, api, metricsCollector, logger),
		Registry:          tokens.Arbitrum(),
		Metrics:           metricsCollector,
		Logger:            logger,
	}

	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(ctx, cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		workerConfig.Publisher = publisher
	} else {
		logger.Info("NATS_URL not set, exports cannot publish")
	}

	worker, err := temporal.NewWorker(workerConfig)
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		if err != nil {
			logger.Error("temporal worker error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger from LOG_LEVEL and LOG_FORMAT.
func setupLogger(cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
