// Package service runs a full rank check: every keyword is fetched, the
// primary site's pixel position is estimated and the records are assembled
// into a report that is optionally persisted and reported to analytics.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/fetcher"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/pixel"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/report"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// RankFetcher is satisfied by *fetcher.Fetcher.
type RankFetcher interface {
	Fetch(ctx context.Context, keyword string, sites []string) fetcher.Rankings
}

// HistoryStore is satisfied by *store.Store.
type HistoryStore interface {
	SaveReport(ctx context.Context, requestID string, rep *report.Report) error
	History(ctx context.Context, keyword string, limit int) ([]store.Entry, error)
}

type Options struct {
	// Concurrency bounds parallel keyword lookups. Values below 1 mean 1.
	Concurrency int
	Pixel       pixel.Estimator
	Store       HistoryStore
	Collector   *analytics.Collector
	Metrics     *metrics.Metrics
}

type Service struct {
	fetcher     RankFetcher
	pixel       pixel.Estimator
	concurrency int
	store       HistoryStore
	collector   *analytics.Collector
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(f RankFetcher, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Pixel.RowHeight <= 0 {
		opts.Pixel = pixel.NewEstimator(pixel.DefaultHeaderOffset, pixel.DefaultRowHeight)
	}
	return &Service{
		fetcher:     f,
		pixel:       opts.Pixel,
		concurrency: opts.Concurrency,
		store:       opts.Store,
		collector:   opts.Collector,
		metrics:     opts.Metrics,
		logger:      slog.Default().With("component", "rank-service"),
	}
}

// Check ranks sites for every keyword. sites[0] is the primary site. The
// records keep the keyword order. Search failures never fail the check;
// only invalid input or a cancelled context does.
func (s *Service) Check(ctx context.Context, keywords, sites []string) (*report.Report, error) {
	if err := Validate(keywords, sites); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	start := time.Now()
	primary := sites[0]
	ctx, span := tracing.Start(ctx, "rank_check")
	span.SetAttr("keywords", len(keywords))
	defer func() {
		span.End()
		span.Log(ctx)
	}()

	records := make([]report.Record, len(keywords))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, keyword := range keywords {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			kctx, ks := tracing.Start(gctx, "keyword")
			ks.SetAttr("keyword", keyword)
			ranks := s.fetcher.Fetch(kctx, keyword, sites)
			records[i] = report.NewRecord(keyword, ranks, s.pixel.Estimate(ranks[primary]))
			ks.End()
			s.track(gctx, records[i], primary, len(sites), ks.Duration)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Newf(apperrors.ErrTimeout, http.StatusServiceUnavailable,
			"rank check interrupted: %v", err)
	}

	rep := report.Build(sites, records)
	log.Info("rank check completed",
		"keywords", len(keywords),
		"sites", len(sites),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if s.store != nil {
		sctx, ss := tracing.Start(ctx, "save_report")
		if err := s.store.SaveReport(sctx, logger.RequestID(ctx), rep); err != nil {
			log.Error("failed to save rank report", "error", err)
		}
		ss.End()
	}
	return rep, nil
}

// History lists stored rank entries. It fails when no store is configured.
func (s *Service) History(ctx context.Context, keyword string, limit int) ([]store.Entry, error) {
	if s.store == nil {
		return nil, apperrors.New(apperrors.ErrInternal, http.StatusNotImplemented, "rank history is not enabled")
	}
	entries, err := s.store.History(ctx, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("loading rank history: %w", err)
	}
	return entries, nil
}

func (s *Service) track(ctx context.Context, rec report.Record, primary string, sites int, latency time.Duration) {
	primaryRank := rec.Ranks[primary]
	if s.metrics != nil && primaryRank != nil {
		s.metrics.SERPPrimaryRank.Observe(float64(*primaryRank))
	}
	ranked := 0
	for _, r := range rec.Ranks {
		if r != nil {
			ranked++
		}
	}
	s.collector.Track(analytics.RankEvent{
		Type:        analytics.EventRankCheck,
		Keyword:     rec.Keyword,
		Primary:     primary,
		PrimaryRank: primaryRank,
		Sites:       sites,
		SitesRanked: ranked,
		LatencyMs:   latency.Milliseconds(),
		Timestamp:   time.Now().UTC(),
		RequestID:   logger.RequestID(ctx),
	})
}
