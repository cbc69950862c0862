package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"joke-pipeline/internal/collector"
	"joke-pipeline/internal/config"
	"joke-pipeline/internal/database"
	"joke-pipeline/internal/handoff"
	"joke-pipeline/internal/notify"
	"joke-pipeline/internal/pipeline"
	"joke-pipeline/internal/scheduler"
	"joke-pipeline/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var once = flag.Bool("once", false, "run the pipeline a single time and exit")

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrEmptyDBPassword) {
			fmt.Fprintln(os.Stderr, "Error: DB_PASSWORD environment variable is required")
		} else if errors.Is(err, config.ErrEmptyNotifyToken) {
			fmt.Fprintln(os.Stderr, "Error: NOTIFY_TOKEN environment variable is required when NOTIFY_ENABLED is set")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		}
		os.Exit(1)
	}

	logger.Init(cfg.App.LogLevel, nil)
	logger.Info("Starting joke-pipeline",
		logger.String("app", cfg.App.Name),
		logger.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		var dbErr *database.ConnectionError
		if errors.As(err, &dbErr) {
			logger.Error("Failed to connect to database",
				logger.Err(dbErr),
				logger.String("host", cfg.Database.Host),
				logger.Int("port", cfg.Database.Port),
			)
		} else {
			logger.Error("Failed to connect to database",
				logger.Err(err),
			)
		}
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to database")

	store, closeStore, err := newStore(cfg)
	if err != nil {
		logger.Error("Failed to open handoff store", logger.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	loc, err := cfg.Collector.Location()
	if err != nil {
		logger.Error("Invalid timezone", logger.Err(err))
		os.Exit(1)
	}

	c, err := collector.New(cfg.API, cfg.Collector)
	if err != nil {
		logger.Error("Failed to create collector", logger.Err(err))
		os.Exit(1)
	}

	var opts []pipeline.Option
	if cfg.Notify.Enabled {
		n, err := notify.NewTelegram(cfg.Notify)
		if err != nil {
			logger.Error("Failed to create notifier", logger.Err(err))
			os.Exit(1)
		}
		opts = append(opts, pipeline.WithNotifier(n))
		logger.Info("Failure notifications enabled")
	}

	p := pipeline.New(
		func(ctx context.Context) error { return database.EnsureSchema(ctx, db.Pool) },
		c,
		database.NewJokeRepository(db.Pool),
		store,
		cfg.Schedule,
		cfg.Handoff.Key,
		opts...,
	)

	if *once {
		if err := p.Run(ctx); err != nil {
			logger.Error("Pipeline run failed", logger.Err(err))
			os.Exit(1)
		}
		return
	}

	sched, err := scheduler.New(cfg.Schedule, loc, p.Run)
	if err != nil {
		logger.Error("Failed to create scheduler", logger.Err(err))
		os.Exit(1)
	}
	if err := sched.Start(); err != nil {
		logger.Error("Failed to start scheduler", logger.Err(err))
		os.Exit(1)
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc(cfg.Health.Endpoint, func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	healthMux.Handle("/metrics", promhttp.Handler())

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Health server starting",
			logger.Int("port", cfg.Health.Port),
		)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", logger.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", logger.Err(err))
	}

	logger.Info("Pipeline stopped gracefully")
}

func newStore(cfg *config.Config) (handoff.Store, func(), error) {
	if cfg.Handoff.Backend != config.HandoffNATS {
		return handoff.NewMemory(), func() {}, nil
	}

	n, err := handoff.NewNATS(cfg.NATS)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Connected to NATS", logger.String("url", cfg.NATS.URL))
	return n, n.Close, nil
}
