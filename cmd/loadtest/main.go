// Command loadtest drives the predictor API with a sweep of ranks and reports
// throughput and latency percentiles. The rank checker is not a target: every
// request to it spends search API credits.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 20 -duration 30s
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Dataset     string
	Quota       string
	SeatType    string
	MinRank     int
	MaxRank     int
	Export      bool
	Concurrency int
	Duration    time.Duration
}

type Stats struct {
	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

func (s *Stats) Record(d time.Duration, status int, err error) {
	s.total.Add(1)
	if err != nil || status < 200 || status >= 300 {
		s.failed.Add(1)
	} else {
		s.success.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	s.mu.Unlock()
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the predictor service")
	flag.StringVar(&cfg.Dataset, "dataset", "", "dataset name (service default when empty)")
	flag.StringVar(&cfg.Quota, "quota", "AI", "quota to query")
	flag.StringVar(&cfg.SeatType, "seat-type", "OPEN", "seat type to query")
	flag.IntVar(&cfg.MinRank, "min-rank", 1, "lowest rank in the sweep")
	flag.IntVar(&cfg.MaxRank, "max-rank", 200000, "highest rank in the sweep")
	flag.BoolVar(&cfg.Export, "export", false, "request the workbook export instead of JSON")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.Parse()

	if cfg.MinRank < 1 || cfg.MaxRank < cfg.MinRank {
		fmt.Fprintln(os.Stderr, "rank sweep must satisfy 1 <= min-rank <= max-rank")
		os.Exit(2)
	}

	fmt.Println("=== Predictor Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Ranks:       %d..%d (%s/%s)\n", cfg.MinRank, cfg.MaxRank, cfg.Quota, cfg.SeatType)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Println()

	stats := run(cfg)
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

// targetURL returns the request URL for the n-th request of the sweep.
func targetURL(cfg Config, n int) string {
	span := cfg.MaxRank - cfg.MinRank + 1
	rank := cfg.MinRank + n%span

	q := url.Values{}
	q.Set("rank", strconv.Itoa(rank))
	q.Set("quota", cfg.Quota)
	q.Set("seat_type", cfg.SeatType)
	if cfg.Dataset != "" {
		q.Set("dataset", cfg.Dataset)
	}
	path := "/api/v1/predict"
	if cfg.Export {
		path += "/export"
	}
	return cfg.BaseURL + path + "?" + q.Encode()
}

func run(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	// Ranks are spread across the sweep with a stride so concurrent workers
	// hit different parts of the cutoff table.
	const stride = 7919
	var next atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				n := int(next.Add(1)) * stride
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL(cfg, n), nil)
				if err != nil {
					stats.Record(0, 0, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.Record(elapsed, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.Record(elapsed, resp.StatusCode, nil)
			}
		}()
	}
	wg.Wait()
	return stats
}

// printReport writes the results and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.total.Load()
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", stats.success.Load())
	fmt.Fprintf(w, "Failed:          %d\n", stats.failed.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(stats.failed.Load())/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	latencies := slices.Clone(stats.latencies)
	codes := make([]int, 0, len(stats.codes))
	for code := range stats.codes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(stats.codes))
	for code, n := range stats.codes {
		counts[code] = n
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", sum/time.Duration(len(latencies)))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(w, "P%-5.0f %s\n", p, percentile(latencies, p))
		}
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	slices.Sort(codes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, counts[code])
	}

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
