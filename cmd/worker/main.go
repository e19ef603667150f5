package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	workerPkg "feedwire/internal/infra/worker"
	"feedwire/internal/observability/logging"
	"feedwire/internal/observability/tracing"
)

// shutdownTimeout bounds how long SIGTERM waits for a running cycle.
const shutdownTimeout = 30 * time.Second

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.String("feeds_config", workerConfig.FeedsConfig),
		slog.String("cache_backend", workerConfig.CacheBackend),
		slog.Int("max_concurrent_fetches", workerConfig.MaxConcurrentFetches),
		slog.Duration("cycle_timeout", workerConfig.CycleTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	shutdownTracing := tracing.InitProvider()
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to shut down tracer provider", slog.Any("error", err))
		}
	}()

	engine, err := workerPkg.NewEngine(ctx, workerConfig, logger)
	if err != nil {
		logger.Error("failed to initialise engine", slog.String("error", logging.SanitizeError(err)))
		os.Exit(1)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("failed to close engine", slog.Any("error", err))
		}
	}()
	controller := engine.Controller

	startMetricsServer(ctx, logger, workerConfig.MetricsPort)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger, engine.Breakers, controller)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	scheduler, err := workerPkg.NewScheduler(controller, *workerConfig, workerMetrics, logger)
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", workerConfig.CronSchedule),
		slog.Time("next_run", scheduler.NextRun()))

	<-ctx.Done()
	logger.Info("shutdown signal received")
	healthServer.SetReady(false)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		logger.Warn("running cycle did not finish before shutdown timeout", slog.Any("error", err))
	}

	// 最後にキャッシュを書き出す。サイクル中の保存に失敗していても取りこぼさない
	if err := controller.Flush(stopCtx); err != nil {
		logger.Error("final cache persist failed", slog.String("error", logging.SanitizeError(err)))
	}
	logger.Info("worker stopped")
}
