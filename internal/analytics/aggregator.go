package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/kafka"
	"golang.org/x/sync/errgroup"
)

type AggregatedStats struct {
	RankChecks          int64          `json:"rank_checks"`
	PrimaryRanked       int64          `json:"primary_ranked"`
	PrimaryFirstPage    int64          `json:"primary_first_page"`
	PrimaryUnranked     int64          `json:"primary_unranked"`
	AvgPrimaryRank      float64        `json:"avg_primary_rank"`
	MedianPrimaryRank   int            `json:"median_primary_rank"`
	TopKeywords         []Count        `json:"top_keywords"`
	UnrankedKeywords    []Count        `json:"unranked_keywords"`
	Predictions         int64          `json:"predictions"`
	BucketTotals        map[string]int `json:"bucket_totals"`
	TopQuotas           []Count        `json:"top_quotas"`
	TopCategories       []Count        `json:"top_categories"`
	AvgPredictionMs     float64        `json:"avg_prediction_ms"`
	RankChecksPerMinute float64        `json:"rank_checks_per_minute"`
}

type Count struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Aggregator folds rank and prediction events into in-memory counters.
type Aggregator struct {
	mu               sync.RWMutex
	rankChecks       int64
	primaryFirstPage int64
	primaryUnranked  int64
	primaryRanks     []int
	keywordCounts    map[string]int64
	unrankedKeywords map[string]int64
	predictions      int64
	predictionMs     int64
	buckets          map[string]int
	quotaCounts      map[string]int64
	categoryCounts   map[string]int64
	startTime        time.Time

	consumers []*kafka.Consumer
	logger    *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		primaryRanks:     make([]int, 0, 1024),
		keywordCounts:    make(map[string]int64),
		unrankedKeywords: make(map[string]int64),
		buckets:          map[string]int{"safe": 0, "moderate": 0, "ambitious": 0},
		quotaCounts:      make(map[string]int64),
		categoryCounts:   make(map[string]int64),
		startTime:        time.Now(),
		logger:           slog.Default().With("component", "analytics-aggregator"),
	}
}

// Attach registers consumers whose handler is a.HandleEvent.
func (a *Aggregator) Attach(consumers ...*kafka.Consumer) {
	a.consumers = append(a.consumers, consumers...)
}

// Start runs every attached consumer until ctx is cancelled or one fails.
func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("analytics aggregator starting", "consumers", len(a.consumers))
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range a.consumers {
		g.Go(func() error { return c.Start(ctx) })
	}
	return g.Wait()
}

// HandleEvent is a kafka.MessageHandler. Undecodable messages are logged
// and skipped so they are still committed.
func (a *Aggregator) HandleEvent(ctx context.Context, key []byte, value []byte) error {
	env, err := kafka.DecodeJSON[envelope](value)
	if err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	switch env.Type {
	case EventRankCheck:
		event, err := kafka.DecodeJSON[RankEvent](value)
		if err != nil {
			a.logger.Error("failed to decode rank event", "error", err)
			return nil
		}
		a.RecordRank(event)
	case EventPrediction:
		event, err := kafka.DecodeJSON[PredictionEvent](value)
		if err != nil {
			a.logger.Error("failed to decode prediction event", "error", err)
			return nil
		}
		a.RecordPrediction(event)
	default:
		a.logger.Warn("unknown analytics event type", "type", env.Type)
	}
	return nil
}

func (a *Aggregator) RecordRank(event RankEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rankChecks++
	a.keywordCounts[event.Keyword]++
	if event.PrimaryRank == nil {
		a.primaryUnranked++
		a.unrankedKeywords[event.Keyword]++
		return
	}
	a.primaryRanks = append(a.primaryRanks, *event.PrimaryRank)
	if *event.PrimaryRank <= 10 {
		a.primaryFirstPage++
	}
}

func (a *Aggregator) RecordPrediction(event PredictionEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.predictions++
	a.predictionMs += event.LatencyMs
	a.buckets["safe"] += event.Safe
	a.buckets["moderate"] += event.Moderate
	a.buckets["ambitious"] += event.Ambitious
	a.quotaCounts[event.Quota]++
	if event.Category != "" {
		a.categoryCounts[event.Category]++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		RankChecks:       a.rankChecks,
		PrimaryRanked:    int64(len(a.primaryRanks)),
		PrimaryFirstPage: a.primaryFirstPage,
		PrimaryUnranked:  a.primaryUnranked,
		Predictions:      a.predictions,
		BucketTotals:     make(map[string]int, len(a.buckets)),
	}
	if len(a.primaryRanks) > 0 {
		sorted := make([]int, len(a.primaryRanks))
		copy(sorted, a.primaryRanks)
		sort.Ints(sorted)
		var sum int
		for _, r := range sorted {
			sum += r
		}
		stats.AvgPrimaryRank = float64(sum) / float64(len(sorted))
		stats.MedianPrimaryRank = percentile(sorted, 50)
	}
	for k, v := range a.buckets {
		stats.BucketTotals[k] = v
	}
	if a.predictions > 0 {
		stats.AvgPredictionMs = float64(a.predictionMs) / float64(a.predictions)
	}
	stats.TopKeywords = topN(a.keywordCounts, 10)
	stats.UnrankedKeywords = topN(a.unrankedKeywords, 10)
	stats.TopQuotas = topN(a.quotaCounts, 10)
	stats.TopCategories = topN(a.categoryCounts, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.RankChecksPerMinute = float64(stats.RankChecks) / elapsed
	}
	return stats
}

// MarshalSnapshot encodes the current stats for persistence.
func (a *Aggregator) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(a.Stats())
}

func percentile(sorted []int, pct int) int {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []Count {
	result := make([]Count, 0, len(counts))
	for key, count := range counts {
		result = append(result, Count{Key: key, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Key < result[j].Key
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
