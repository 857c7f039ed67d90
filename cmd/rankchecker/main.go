// Command rankchecker starts the search ranking service.
//
// It resolves, per keyword, the organic rank of a primary site and its
// competitors via the search API, caches API responses in Redis, stores
// every report in PostgreSQL and publishes rank events to Kafka.
//
// Usage:
//
//	go run ./cmd/rankchecker [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/cache"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/fetcher"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/handler"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/pixel"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/service"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/store"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/resilience"
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
	slog.Info("starting rank checker service", "port", cfg.Server.Port)
	if cfg.SERP.APIKey == "" {
		slog.Warn("no search API key configured, requests without their own key will resolve to no rank")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	breaker := resilience.NewCircuitBreaker("serp", resilience.CircuitBreakerConfig{
		FailureThreshold:    cfg.SERP.BreakerThreshold,
		ResetTimeout:        cfg.SERP.BreakerReset,
		HalfOpenMaxRequests: 1,
		IsFailure:           fetcher.CountsAsOutage,
		OnStateChange: func(name string, state resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
		},
	})
	checker.Register("serp_breaker", func(ctx context.Context) health.ComponentHealth {
		if s := breaker.State(); s != resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: s.String()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	var searcher fetcher.Searcher = fetcher.NewClient(cfg.SERP, "")
	var cacheAdmin handler.CacheAdmin
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		searchCache := cache.New(searcher, redisClient, cfg.Redis.CacheTTL, cfg.SERP.Timeout, locale(cfg.SERP), m)
		searcher = searchCache
		cacheAdmin = searchCache
		checker.Register("redis", health.PingCheck(redisClient.Ping, false))
		slog.Info("search cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	rankFetcher := fetcher.New(searcher, fetcher.Options{
		Timeout: cfg.SERP.Timeout,
		Limit:   cfg.SERP.ResultCount,
		Breaker: breaker,
		Metrics: m,
	})

	opts := service.Options{
		Concurrency: cfg.SERP.Concurrency,
		Pixel:       pixel.NewEstimator(cfg.SERP.HeaderOffset, cfg.SERP.RowHeight),
		Metrics:     m,
	}

	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		history := store.New(db)
		if err := history.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create rank history schema", "error", err)
			os.Exit(1)
		}
		opts.Store = history
		checker.Register("postgres", health.PingCheck(db.Ping, true))
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RankEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 1000)
		go collector.Start(ctx)
		defer collector.Close()
		opts.Collector = collector
		slog.Info("publishing rank events", "topic", cfg.Kafka.Topics.RankEvents)
	}

	svc := service.New(rankFetcher, opts)
	rankHandler := handler.New(svc, cacheAdmin)

	mux := http.NewServeMux()
	rankHandler.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	limiter := ratelimit.New(cfg.SERP.RateLimitPerMinute, time.Minute)
	go limiter.Cleanup(ctx.Done(), 5*time.Minute)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.CORS.AllowOrigins

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(corsCfg),
		middleware.RateLimit(limiter, cfg.Server.TrustedProxyPrefixes()),
		middleware.Timeout(cfg.Server.WriteTimeout),
		middleware.Metrics(m),
	)

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer("rankchecker", cfg.Metrics.Port)
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

	slog.Info("rank checker service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	slog.Info("rank checker service stopped")
}

// locale identifies the search profile so cached responses fetched with
// different settings never mix.
func locale(c config.SERPConfig) string {
	return strings.Join([]string{c.Engine, c.Device, c.Country, c.Language, c.Location}, "|")
}
