package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/process-detector/internal/application/usecase"
	"github.com/dreschagin/process-detector/internal/bootstrap"
	prommetrics "github.com/dreschagin/process-detector/internal/infrastructure/observability/prometheus"
	"github.com/dreschagin/process-detector/internal/trendwatch"
	"github.com/dreschagin/process-detector/pkg/config"
	"github.com/dreschagin/process-detector/pkg/logger"
)

const minInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.TrendWatch.Interval < minInterval {
		fmt.Fprintf(os.Stderr, "TREND_WATCH_INTERVAL must be >= %s\n", minInterval)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info(
		"Starting trend watcher",
		"interval", cfg.TrendWatch.Interval.String(),
		"port", cfg.TrendWatch.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := bootstrap.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open history store", err, "backend", cfg.History.Backend)
		os.Exit(1)
	}
	defer stores.Close()

	registry := prometheus.NewRegistry()
	metrics := prommetrics.New(registry)

	trends := usecase.NewGetTrendUseCase(stores.History, nil, log)
	service := trendwatch.NewService(stores.History, trends, log)
	runner := trendwatch.NewRunner(service, log, cfg.TrendWatch.Interval, metrics)
	handler := trendwatch.NewHandler(runner, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if _, err := runner.RunOnce(ctx); err != nil {
		log.Error("Initial trend watch cycle failed", err)
	}

	go runner.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.TrendWatch.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Info("Trend watcher HTTP server started", "port", cfg.TrendWatch.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Trend watcher HTTP server failed", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Trend watcher HTTP server shutdown failed", err)
	}

	log.Info("Trend watcher stopped")
}
