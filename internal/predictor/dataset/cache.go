package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Dataset is a named, loaded set of admission rows. Rows is shared by every
// caller and must be treated as read-only.
type Dataset struct {
	Name     string         `json:"name"`
	Paths    []string       `json:"-"`
	Rows     []AdmissionRow `json:"-"`
	LoadedAt time.Time      `json:"loaded_at"`
}

// Loader reads and normalizes the files of one dataset.
type Loader func(paths []string) ([]AdmissionRow, error)

// LoadNormalized is the default Loader. The files are concatenated by column
// name before normalization.
func LoadNormalized(paths []string) ([]AdmissionRow, error) {
	raw, err := LoadFiles(paths...)
	if err != nil {
		return nil, err
	}
	t, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	return Rows(t), nil
}

// Cache memoizes datasets by name until they are invalidated. Concurrent
// loads of one dataset share a single read.
type Cache struct {
	catalog map[string][]string
	load    Loader
	metrics *metrics.Metrics
	logger  *slog.Logger
	group   singleflight.Group

	mu       sync.RWMutex
	datasets map[string]*Dataset
	// gens counts invalidations per dataset. A load only stores its result
	// if the generation it started under is still current.
	gens     map[string]uint64
}

// NewCache creates a cache over catalog, which maps dataset names to the
// files they are built from. A nil load uses LoadNormalized.
func NewCache(catalog map[string][]string, load Loader, m *metrics.Metrics) *Cache {
	if load == nil {
		load = LoadNormalized
	}
	cp := make(map[string][]string, len(catalog))
	for name, paths := range catalog {
		cp[name] = append([]string(nil), paths...)
	}
	return &Cache{
		catalog:  cp,
		load:     load,
		metrics:  m,
		logger:   slog.Default().With("component", "dataset-cache"),
		datasets: make(map[string]*Dataset),
		gens:     make(map[string]uint64),
	}
}

// Names returns the configured dataset names, sorted.
func (c *Cache) Names() []string {
	names := make([]string, 0, len(c.catalog))
	for name := range c.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named dataset, loading its files on first use.
func (c *Cache) Get(ctx context.Context, name string) (*Dataset, error) {
	paths, ok := c.catalog[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrDatasetNotFound, http.StatusNotFound, "unknown dataset %q", name)
	}
	c.mu.RLock()
	ds, ok := c.datasets[name]
	gen := c.gens[name]
	c.mu.RUnlock()
	if ok {
		return ds, nil
	}

	// The generation is part of the key so a Get after Invalidate never
	// joins a load that started before it.
	ch := c.group.DoChan(fmt.Sprintf("%s@%d", name, gen), func() (any, error) {
		start := time.Now()
		rows, err := c.load(paths)
		if err != nil {
			c.observe(name, "error", 0)
			c.logger.Error("dataset load failed", "dataset", name, "error", err)
			return nil, err
		}
		ds := &Dataset{
			Name:     name,
			Paths:    paths,
			Rows:     rows[:len(rows):len(rows)],
			LoadedAt: time.Now().UTC(),
		}
		c.mu.Lock()
		current := c.gens[name] == gen
		if current {
			c.datasets[name] = ds
		}
		c.mu.Unlock()
		if !current {
			c.logger.Debug("dataset invalidated while loading, not cached", "dataset", name)
			return ds, nil
		}
		c.observe(name, "ok", len(rows))
		c.logger.Info("dataset loaded",
			"dataset", name,
			"files", len(paths),
			"rows", len(rows),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return ds, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Dataset), nil
	case <-ctx.Done():
		return nil, apperrors.Newf(apperrors.ErrTimeout, http.StatusServiceUnavailable, "loading dataset %q: %v", name, ctx.Err())
	}
}

// Invalidate drops the named dataset, and every dataset built from one of
// its files, so the next Get reloads them from disk.
func (c *Cache) Invalidate(name string) error {
	paths, ok := c.catalog[name]
	if !ok {
		return apperrors.Newf(apperrors.ErrDatasetNotFound, http.StatusNotFound, "unknown dataset %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for other, otherPaths := range c.catalog {
		if other == name || sharesPath(otherPaths, paths) {
			delete(c.datasets, other)
			c.gens[other]++
		}
	}
	c.logger.Info("dataset invalidated", "dataset", name)
	return nil
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.datasets = make(map[string]*Dataset)
	for name := range c.catalog {
		c.gens[name]++
	}
	c.logger.Info("all datasets invalidated")
}

// Loaded reports whether name is currently cached.
func (c *Cache) Loaded(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.datasets[name]
	return ok
}

func (c *Cache) observe(name, result string, rows int) {
	if c.metrics == nil {
		return
	}
	c.metrics.DatasetLoadsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		c.metrics.DatasetRows.WithLabelValues(name).Set(float64(rows))
	}
}

func sharesPath(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
