// Command analytics starts the standalone usage analytics service.
//
// It consumes rank-check and prediction events from Kafka, aggregates them in
// memory (keywords checked, primary site rank distribution, top keywords,
// bucket totals, top quotas), snapshots the aggregate to PostgreSQL and
// exposes an HTTP API at GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/postgres"
)

const (
	snapshotInterval = time.Minute
	maxHealthyLag    = 10000
)

// main boots the analytics service: one Kafka consumer per event topic feeds
// the aggregator, an optional snapshot loop persists it, and the HTTP API
// serves the live and persisted stats. SIGINT/SIGTERM trigger shutdown.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	consumers := []*kafka.Consumer{
		kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RankEvents, aggregator.HandleEvent),
		kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.PredictionEvents, aggregator.HandleEvent),
	}
	aggregator.Attach(consumers...)

	go func() {
		if err := aggregator.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started",
		"rank_topic", cfg.Kafka.Topics.RankEvents,
		"prediction_topic", cfg.Kafka.Topics.PredictionEvents,
	)

	checker := health.NewChecker()
	for _, c := range consumers {
		checker.Register("kafka_"+c.Topic(), func(ctx context.Context) health.ComponentHealth {
			lag := c.Lag()
			if lag > maxHealthyLag {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: fmt.Sprintf("lag %d", lag)}
			}
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("lag %d", lag)}
		})
	}

	var (
		snapshots  analytics.SnapshotReader
		background sync.WaitGroup
	)
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := analytics.NewSnapshotStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create snapshot schema", "error", err)
			os.Exit(1)
		}
		background.Add(1)
		go func() {
			defer background.Done()
			store.Run(ctx, aggregator, snapshotInterval)
		}()
		snapshots = store
		checker.Register("postgres", health.PingCheck(db.Ping, false))
		slog.Info("analytics snapshots enabled", "interval", snapshotInterval)
	}

	mux := http.NewServeMux()
	analytics.NewHandler(aggregator, snapshots).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	m := metrics.New()
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.CORS.AllowOrigins
	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(corsCfg),
		middleware.Metrics(m),
	)

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer("analytics", cfg.Metrics.Port)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// shutdownDone is closed once in-flight requests have drained. main waits
	// on it before its deferred closers run.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	background.Wait()
	slog.Info("analytics service stopped")
}
