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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"logiplatform/internal/common/api"
	"logiplatform/internal/common/database"
	"logiplatform/internal/common/events"
	"logiplatform/internal/common/middleware"
	"logiplatform/internal/common/nats"
	"logiplatform/internal/featureflag"
	"logiplatform/internal/reconcile"
	reconcileapi "logiplatform/internal/reconcile/api"
	"logiplatform/internal/wallet"
	walletapi "logiplatform/internal/wallet/api"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"WALLET_PORT" default:"8086"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	EventsEnabled bool `envconfig:"EVENTS_ENABLED" default:"false"`

	// VarianceThresholdPercent is the billed-vs-expected deviation above
	// which a variance case is opened.
	VarianceThresholdPercent float64 `envconfig:"VARIANCE_THRESHOLD_PERCENT" default:"5"`

	Database   database.Config
	Migrations database.MigrateConfig
	NATS       nats.Config
}

func main() {
	// Load .env in development; ignored when absent.
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

	if err := database.Migrate(cfg.Database.URL, cfg.Migrations, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

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

	walletStore := wallet.NewPostgresStore(db)
	walletService := wallet.NewService(walletStore, publisher, logger)
	walletHandler := walletapi.NewHandler(walletService)

	flagStore := featureflag.NewPostgresStore(db)

	reconcileService := reconcile.NewService(
		reconcile.NewPostgresCaseStore(db), walletService, publisher, nil,
		cfg.VarianceThresholdPercent, logger,
	)
	reconcileHandler := reconcileapi.NewHandler(reconcileService)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CompanyExtractor)
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/wallet", func(r chi.Router) {
		r.Mount("/", walletHandler.Routes())
	})

	r.Route("/api/v1/billing", func(r chi.Router) {
		r.Mount("/", reconcileHandler.Routes())
	})

	// Admin toggle for the auto-recharge database flag.
	r.Put("/api/v1/admin/flags/{name}", flagToggleHandler(flagStore, logger))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting wallet service",
			"port", cfg.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func flagToggleHandler(store *featureflag.PostgresStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			api.BadRequest(w, "flag name required")
			return
		}

		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := api.DecodeAndValidate(r, &req); err != nil {
			api.ValidationError(w, err)
			return
		}

		if err := store.SetEnabled(r.Context(), name, req.Enabled); err != nil {
			logger.Error("failed to set feature flag", "name", name, "error", err)
			api.InternalError(w, "failed to set feature flag")
			return
		}

		logger.Info("feature flag updated", "name", name, "enabled", req.Enabled)
		api.WriteData(w, http.StatusOK, map[string]any{"name": name, "enabled": req.Enabled})
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
