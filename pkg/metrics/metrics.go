// Package metrics defines the Prometheus metric collectors used across the
// services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SERPRequestsTotal    *prometheus.CounterVec
	SERPLatency          prometheus.Histogram
	SERPPrimaryRank      prometheus.Histogram
	RankCacheHitsTotal   prometheus.Counter
	RankCacheMissesTotal prometheus.Counter
	DatasetLoadsTotal    *prometheus.CounterVec
	DatasetRows          *prometheus.GaugeVec
	PredictionsTotal     *prometheus.CounterVec
	BucketSize           *prometheus.HistogramVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SERPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serp_requests_total",
				Help: "Search API calls by outcome (ok, no_results, error, circuit_open).",
			},
			[]string{"outcome"},
		),
		SERPLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "serp_request_duration_seconds",
				Help:    "Search API call latency in seconds.",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
		),
		SERPPrimaryRank: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "serp_primary_rank",
				Help:    "Rank of the primary site when it was found.",
				Buckets: []float64{1, 3, 5, 10, 20, 30, 50, 100},
			},
		),
		RankCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rank_cache_hits_total",
				Help: "Total number of ranking cache hits.",
			},
		),
		RankCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rank_cache_misses_total",
				Help: "Total number of ranking cache misses.",
			},
		),
		DatasetLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataset_loads_total",
				Help: "Cutoff dataset loads by result (ok, error).",
			},
			[]string{"result"},
		),
		DatasetRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dataset_rows",
				Help: "Rows retained after normalization per dataset.",
			},
			[]string{"dataset"},
		),
		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictions_total",
				Help: "College predictions served by course category.",
			},
			[]string{"category"},
		),
		BucketSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prediction_bucket_size",
				Help:    "Number of colleges placed in each bucket per prediction.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"bucket"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SERPRequestsTotal,
		m.SERPLatency,
		m.SERPPrimaryRank,
		m.RankCacheHitsTotal,
		m.RankCacheMissesTotal,
		m.DatasetLoadsTotal,
		m.DatasetRows,
		m.PredictionsTotal,
		m.BucketSize,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
