package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"logiplatform/internal/common/database"
	"logiplatform/internal/common/events"
	"logiplatform/internal/common/nats"
	"logiplatform/internal/featureflag"
	"logiplatform/internal/gateway"
	"logiplatform/internal/lock"
	"logiplatform/internal/recharge"
	"logiplatform/internal/wallet"
)

// Config holds worker configuration
type Config struct {
	Interval    time.Duration `envconfig:"RECHARGE_INTERVAL" default:"5m"`
	MetricsPort int           `envconfig:"RECHARGE_METRICS_PORT" default:"9091"`
	Environment string        `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string        `envconfig:"LOG_FORMAT" default:"json"`

	EventsEnabled bool `envconfig:"EVENTS_ENABLED" default:"false"`

	Database database.Config
	Redis    lock.RedisConfig
	Gateway  gateway.Config
	Worker   recharge.Config
	NATS     nats.Config
}

func main() {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := lock.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var publisher events.EventPublisher
	if cfg.EventsEnabled {
		natsClient, err := nats.New(ctx, cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = nats.NewPublisher(natsClient, logger)
	}

	worker := recharge.NewWorker(
		cfg.Worker,
		wallet.NewPostgresStore(db),
		featureflag.NewPostgresStore(db),
		lock.NewRedisLocker(rdb),
		gateway.NewClient(cfg.Gateway, logger),
		recharge.NewPrometheusSink(prometheus.DefaultRegisterer),
		publisher,
		nil, // real clock
		logger,
	)

	// Metrics endpoint for scraping.
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("starting recharge worker",
		"interval", cfg.Interval,
		"environment", cfg.Environment,
	)

	// Run once at startup, then on every tick.
	if err := worker.Run(ctx); err != nil {
		logger.Error("recharge batch failed", "error", err)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down worker")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
			logger.Info("worker stopped")
			return
		case <-ticker.C:
			if err := worker.Run(ctx); err != nil {
				logger.Error("recharge batch failed", "error", err)
			}
		}
	}
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
