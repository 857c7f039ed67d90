// Command predictor starts the college predictor service.
//
// It loads the configured admission cutoff datasets on first use, classifies
// every matching college course as safe, moderate or ambitious for a given
// rank, and serves the results as JSON or as a spreadsheet workbook.
//
// Usage:
//
//	go run ./cmd/predictor [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/classifier"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/course"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/dataset"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/handler"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/service"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting predictor service",
		"port", cfg.Server.Port,
		"datasets", len(cfg.Predictor.Datasets),
		"default_dataset", cfg.Predictor.DefaultDataset,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	granularity, err := course.ParseGranularity(cfg.Predictor.Granularity)
	if err != nil {
		slog.Error("invalid predictor granularity", "error", err)
		os.Exit(1)
	}
	cls, err := classifier.New(classifier.Config{
		Curve:            classifier.Curve{Cap: cfg.Predictor.ChanceCap, Floor: cfg.Predictor.ChanceFloor},
		IncludeDeviation: cfg.Predictor.IncludeDeviation,
		Granularity:      granularity,
	})
	if err != nil {
		slog.Error("invalid classifier config", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	datasets := dataset.NewCache(cfg.Predictor.Datasets, dataset.LoadNormalized, m)

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.PredictionEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 1000)
		go collector.Start(ctx)
		defer collector.Close()
		slog.Info("publishing prediction events", "topic", cfg.Kafka.Topics.PredictionEvents)
	}

	svc := service.New(datasets, cls, cfg.Predictor.DefaultDataset, collector, m)

	if name := cfg.Predictor.DefaultDataset; name != "" {
		if ds, err := datasets.Get(ctx, name); err != nil {
			slog.Warn("default dataset failed to preload", "dataset", name, "error", err)
		} else {
			slog.Info("default dataset preloaded", "dataset", name, "rows", len(ds.Rows))
		}
	}

	checker := health.NewChecker()
	checker.Register("datasets", func(ctx context.Context) health.ComponentHealth {
		name := cfg.Predictor.DefaultDataset
		if name == "" {
			return health.ComponentHealth{Status: health.StatusUp, Message: "no default dataset"}
		}
		if _, err := datasets.Get(ctx, name); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: name}
	})

	mux := http.NewServeMux()
	handler.New(svc).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.CORS.AllowOrigins

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(corsCfg),
		middleware.Timeout(cfg.Server.WriteTimeout),
		middleware.Metrics(m),
	)

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer("predictor", cfg.Metrics.Port)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + 5*time.Second,
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

	slog.Info("predictor service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	slog.Info("predictor service stopped")
}
