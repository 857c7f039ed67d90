// Package fetcher resolves, per keyword, the position of each target site in
// the organic results returned by the search API.
package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/domain"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/resilience"
)

// MaxResults is the deepest rank the fetcher reports.
const MaxResults = 100

// Rankings maps each requested site identifier to its 1-based rank, or nil
// when the site was not found.
type Rankings map[string]*int

// Searcher performs one search query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]OrganicResult, error)
}

// Fetcher wraps a Searcher with a timeout, a circuit breaker and the
// no-rank degradation policy.
type Fetcher struct {
	searcher Searcher
	breaker  *resilience.CircuitBreaker
	timeout  time.Duration
	limit    int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Options tunes a Fetcher. Zero values disable the feature.
type Options struct {
	Timeout time.Duration
	Limit   int
	Breaker *resilience.CircuitBreaker
	Metrics *metrics.Metrics
}

func New(searcher Searcher, opts Options) *Fetcher {
	limit := opts.Limit
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}
	return &Fetcher{
		searcher: searcher,
		breaker:  opts.Breaker,
		timeout:  opts.Timeout,
		limit:    limit,
		metrics:  opts.Metrics,
		logger:   slog.Default().With("component", "rank-fetcher"),
	}
}

// Fetch runs one query for keyword and ranks sites against its results.
// It never returns an error: any failure resolves every site to nil.
func (f *Fetcher) Fetch(ctx context.Context, keyword string, sites []string) Rankings {
	log := logger.FromContext(ctx)
	start := time.Now()

	var results []OrganicResult
	call := func() error {
		var err error
		results, err = resilience.Call(ctx, f.timeout, "serp search", func(ctx context.Context) ([]OrganicResult, error) {
			return f.searcher.Search(ctx, keyword)
		})
		return err
	}
	var err error
	if f.breaker != nil {
		err = f.breaker.Execute(call)
	} else {
		err = call()
	}
	f.observe(start, err)

	if err != nil {
		log.Warn("search failed, reporting no rank",
			"keyword", keyword,
			"sites", len(sites),
			"error", err,
		)
		return RankSites(nil, sites, f.limit)
	}
	rankings := RankSites(results, sites, f.limit)
	log.Debug("keyword ranked", "keyword", keyword, "results", len(results))
	return rankings
}

func (f *Fetcher) observe(start time.Time, err error) {
	if f.metrics == nil {
		return
	}
	f.metrics.SERPLatency.Observe(time.Since(start).Seconds())
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		outcome = "circuit_open"
	case errors.Is(err, ErrNoOrganicResults):
		outcome = "no_results"
	default:
		outcome = "error"
	}
	f.metrics.SERPRequestsTotal.WithLabelValues(outcome).Inc()
}

// RankSites scans results in order, recording for each site the first
// position whose link normalizes to the site's domain. Only the first limit
// results are considered. Every site is present in the returned map.
func RankSites(results []OrganicResult, sites []string, limit int) Rankings {
	rankings := make(Rankings, len(sites))
	targets := make(map[string]string, len(sites))
	for _, site := range sites {
		rankings[site] = nil
		targets[site] = domain.Normalize(site)
	}
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	for i := 0; i < limit; i++ {
		link := domain.Normalize(results[i].Link)
		if link == "" {
			continue
		}
		for _, site := range sites {
			if rankings[site] != nil || targets[site] != link {
				continue
			}
			rank := i + 1
			rankings[site] = &rank
		}
	}
	return rankings
}
