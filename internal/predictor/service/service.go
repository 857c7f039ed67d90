// Package service answers predictions against the configured cutoff
// datasets.
package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/classifier"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/dataset"
	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/tracing"
)

type DatasetInfo struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
	Loaded  bool   `json:"loaded"`
}

type Service struct {
	datasets       *dataset.Cache
	classifier     *classifier.Classifier
	defaultDataset string
	collector      *analytics.Collector
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// New creates a Service. collector and m may be nil.
func New(datasets *dataset.Cache, c *classifier.Classifier, defaultDataset string, collector *analytics.Collector, m *metrics.Metrics) *Service {
	return &Service{
		datasets:       datasets,
		classifier:     c,
		defaultDataset: defaultDataset,
		collector:      collector,
		metrics:        m,
		logger:         slog.Default().With("component", "predictor-service"),
	}
}

func (s *Service) Config() classifier.Config { return s.classifier.Config() }

// Datasets lists the configured datasets.
func (s *Service) Datasets() []DatasetInfo {
	names := s.datasets.Names()
	out := make([]DatasetInfo, 0, len(names))
	for _, name := range names {
		out = append(out, DatasetInfo{
			Name:    name,
			Default: name == s.defaultDataset,
			Loaded:  s.datasets.Loaded(name),
		})
	}
	return out
}

// Options returns the filter values present in a dataset.
func (s *Service) Options(ctx context.Context, name string) (classifier.Options, error) {
	ds, err := s.dataset(ctx, name)
	if err != nil {
		return classifier.Options{}, err
	}
	return classifier.DiscoverOptions(ds.Rows), nil
}

// Predict classifies the named dataset, or the default one when name is
// empty, against q.
func (s *Service) Predict(ctx context.Context, name string, q classifier.Query) (*classifier.Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx)
	ctx, span := tracing.Start(ctx, "predict")
	defer func() {
		span.End()
		span.Log(ctx)
	}()

	lctx, ls := tracing.Start(ctx, "load_dataset")
	ds, err := s.dataset(lctx, name)
	ls.End()
	if err != nil {
		return nil, err
	}
	_, cs := tracing.Start(ctx, "classify")
	cs.SetAttr("rows", len(ds.Rows))
	res, err := s.classifier.Classify(ds.Rows, q)
	cs.End()
	if err != nil {
		return nil, err
	}
	span.SetAttr("dataset", ds.Name)
	latency := time.Since(start)

	if s.metrics != nil {
		category := string(q.Category)
		if category == "" {
			category = "all"
		}
		s.metrics.PredictionsTotal.WithLabelValues(category).Inc()
		for _, b := range classifier.Buckets {
			s.metrics.BucketSize.WithLabelValues(string(b)).Observe(float64(len(res.Bucket(b))))
		}
	}
	s.collector.Track(analytics.PredictionEvent{
		Type:      analytics.EventPrediction,
		Dataset:   ds.Name,
		Rank:      q.Rank,
		Quota:     q.Quota,
		SeatType:  q.SeatType,
		Category:  string(q.Category),
		Safe:      len(res.Safe),
		Moderate:  len(res.Moderate),
		Ambitious: len(res.Ambitious),
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	})
	log.Info("prediction served",
		"dataset", ds.Name,
		"rank", q.Rank,
		"quota", q.Quota,
		"seat_type", q.SeatType,
		"safe", len(res.Safe),
		"moderate", len(res.Moderate),
		"ambitious", len(res.Ambitious),
		"duration_ms", latency.Milliseconds(),
	)
	return res, nil
}

// Invalidate drops a cached dataset, or every dataset when name is empty.
func (s *Service) Invalidate(name string) error {
	if name == "" {
		s.datasets.InvalidateAll()
		return nil
	}
	return s.datasets.Invalidate(name)
}

func (s *Service) dataset(ctx context.Context, name string) (*dataset.Dataset, error) {
	if name == "" {
		name = s.defaultDataset
	}
	if name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "dataset is required")
	}
	return s.datasets.Get(ctx, name)
}
