// Package cache memoizes search API responses in Redis so repeated rank
// checks of the same keyword within the TTL cost no API credits.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/fetcher"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "serp:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// SearchCache is a fetcher.Searcher that serves results from Redis and
// falls through to the wrapped Searcher on a miss. Failed searches are not
// cached. Concurrent misses for one key share a single upstream call, which
// runs detached from any one caller's context under its own timeout.
type SearchCache struct {
	next        fetcher.Searcher
	store       Store
	ttl         time.Duration
	callTimeout time.Duration
	locale      string
	group       singleflight.Group
	metrics     *metrics.Metrics
	logger      *slog.Logger
	hits        atomic.Int64
	misses      atomic.Int64
}

// New wraps next. locale distinguishes entries fetched with different
// device or location settings. callTimeout bounds the shared upstream call;
// zero means 30s.
func New(next fetcher.Searcher, store Store, ttl, callTimeout time.Duration, locale string, m *metrics.Metrics) *SearchCache {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &SearchCache{
		next:        next,
		store:       store,
		ttl:         ttl,
		callTimeout: callTimeout,
		locale:      locale,
		metrics:     m,
		logger:      slog.Default().With("component", "serp-cache"),
	}
}

// Search implements fetcher.Searcher. Each request is counted once, as a
// hit or a miss.
func (c *SearchCache) Search(ctx context.Context, query string) ([]fetcher.OrganicResult, error) {
	key := c.buildKey(query)
	if results, ok := c.lookup(ctx, key); ok {
		c.hit()
		return results, nil
	}
	c.miss()

	ch := c.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()
		// Another flight may have filled the key since the first lookup.
		if results, ok := c.lookup(shared, key); ok {
			return results, nil
		}
		results, err := c.next.Search(shared, query)
		if err != nil {
			return nil, err
		}
		c.set(shared, key, results)
		return results, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]fetcher.OrganicResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup reads one entry without touching the hit and miss counters.
func (c *SearchCache) lookup(ctx context.Context, key string) ([]fetcher.OrganicResult, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, pkgredis.ErrMiss) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var results []fetcher.OrganicResult
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

func (c *SearchCache) set(ctx context.Context, key string, results []fetcher.OrganicResult) {
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *SearchCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.RankCacheHitsTotal.Inc()
	}
}

func (c *SearchCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.RankCacheMissesTotal.Inc()
	}
}

// Invalidate drops every cached search response.
func (c *SearchCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating serp cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns hit and miss counts since start.
func (c *SearchCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *SearchCache) buildKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	hash := sha256.Sum256([]byte(c.locale + "|" + normalized))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
