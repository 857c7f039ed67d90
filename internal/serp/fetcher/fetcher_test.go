package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/resilience"
)

type fakeSearcher struct {
	results []OrganicResult
	err     error
	calls   int
	delay   time.Duration
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]OrganicResult, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

func links(urls ...string) []OrganicResult {
	out := make([]OrganicResult, len(urls))
	for i, u := range urls {
		out[i] = OrganicResult{Position: i + 1, Link: u}
	}
	return out
}

func rankOf(t *testing.T, r Rankings, site string) int {
	t.Helper()
	v, ok := r[site]
	if !ok {
		t.Fatalf("site %q missing from rankings", site)
	}
	if v == nil {
		return 0
	}
	return *v
}

func TestRankSitesFirstMatchWins(t *testing.T) {
	results := links(
		"https://www.shiksha.com/b-tech",
		"https://collegedunia.com/x",
		"https://shiksha.com/other",
		"https://www.careers360.com/y",
	)
	sites := []string{"careers360.com", "shiksha.com", "collegedunia.com", "collegedekho.com"}
	got := RankSites(results, sites, 100)

	if len(got) != len(sites) {
		t.Fatalf("len(rankings) = %d, want %d", len(got), len(sites))
	}
	want := map[string]int{"careers360.com": 4, "shiksha.com": 1, "collegedunia.com": 2, "collegedekho.com": 0}
	for site, w := range want {
		if r := rankOf(t, got, site); r != w {
			t.Errorf("rank(%s) = %d, want %d", site, r, w)
		}
	}
}

func TestRankSitesRespectsLimit(t *testing.T) {
	results := links("a.com", "b.com", "c.com")
	got := RankSites(results, []string{"c.com"}, 2)
	if got["c.com"] != nil {
		t.Errorf("rank beyond limit reported: %d", *got["c.com"])
	}
}

func TestRankSitesNoResults(t *testing.T) {
	got := RankSites(nil, []string{"a.com", "b.com"}, 100)
	if len(got) != 2 || got["a.com"] != nil || got["b.com"] != nil {
		t.Errorf("expected all nil ranks, got %v", got)
	}
}

func TestFetchDegradesOnError(t *testing.T) {
	f := New(&fakeSearcher{err: errors.New("quota exhausted")}, Options{})
	got := f.Fetch(context.Background(), "btech colleges", []string{"a.com", "b.com"})
	if len(got) != 2 {
		t.Fatalf("rankings = %v", got)
	}
	for site, r := range got {
		if r != nil {
			t.Errorf("rank(%s) = %d, want nil", site, *r)
		}
	}
}

func TestFetchTimeoutDegrades(t *testing.T) {
	f := New(&fakeSearcher{delay: time.Second, results: links("a.com")}, Options{Timeout: 10 * time.Millisecond})
	got := f.Fetch(context.Background(), "kw", []string{"a.com"})
	if got["a.com"] != nil {
		t.Error("timed out search must report no rank")
	}
}

func TestFetchCircuitOpenSkipsSearch(t *testing.T) {
	s := &fakeSearcher{err: errors.New("down")}
	breaker := resilience.NewCircuitBreaker("serp-test", resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})
	f := New(s, Options{Breaker: breaker})
	f.Fetch(context.Background(), "one", []string{"a.com"})
	f.Fetch(context.Background(), "two", []string{"a.com"})
	if s.calls != 1 {
		t.Errorf("searcher calls = %d, want 1 (circuit should be open)", s.calls)
	}
}

func TestClientSearch(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"organic_results": []map[string]any{
				{"position": 1, "link": "https://www.example.com/a"},
				{"position": 2, "link": "https://other.com"},
			},
		})
	}))
	defer srv.Close()

	cfg := config.SERPConfig{
		Endpoint: srv.URL, Engine: "google", Device: "mobile",
		Country: "in", Language: "en", Location: "loc", ResultCount: 100,
	}
	c := NewClient(cfg, "key-123")
	results, err := c.Search(context.Background(), "best colleges")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Link != "https://www.example.com/a" {
		t.Errorf("results = %+v", results)
	}
	want := map[string]string{
		"q": "best colleges", "num": "100", "engine": "google", "device": "mobile",
		"gl": "in", "hl": "en", "uule": "loc", "api_key": "key-123",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query param %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestClientSearchMissingOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "Invalid API key."})
	}))
	defer srv.Close()

	c := NewClient(config.SERPConfig{Endpoint: srv.URL, ResultCount: 100}, "bad")
	_, err := c.Search(context.Background(), "kw")
	if !errors.Is(err, ErrNoOrganicResults) {
		t.Errorf("err = %v, want ErrNoOrganicResults", err)
	}

	f := New(c, Options{})
	got := f.Fetch(context.Background(), "kw", []string{"example.com"})
	if got["example.com"] != nil {
		t.Error("missing organic_results must degrade to no rank")
	}
}

func TestClientSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	c := NewClient(config.SERPConfig{Endpoint: srv.URL, ResultCount: 10}, "k")
	if _, err := c.Search(context.Background(), "kw"); err == nil {
		t.Error("expected error for HTTP 429")
	}
}

func TestClientSearchKeyFromContext(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("api_key")
		if gotKey == "revoked" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Invalid API key."}`))
			return
		}
		w.Write([]byte(`{"organic_results":[]}`))
	}))
	defer srv.Close()

	c := NewClient(config.SERPConfig{Endpoint: srv.URL, ResultCount: 10}, "server-key")
	if _, err := c.Search(context.Background(), "kw"); err != nil || gotKey != "server-key" {
		t.Fatalf("configured key: key=%q err=%v", gotKey, err)
	}
	if _, err := c.Search(WithAPIKey(context.Background(), "user-key"), "kw"); err != nil || gotKey != "user-key" {
		t.Fatalf("request key: key=%q err=%v", gotKey, err)
	}
	_, err := c.Search(WithAPIKey(context.Background(), "revoked"), "kw")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if CountsAsOutage(err) {
		t.Error("a rejected key must not count against the breaker")
	}
}

func TestCountsAsOutage(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("search: %w", ErrUnauthorized), false},
		{context.DeadlineExceeded, true},
		{ErrNoOrganicResults, true},
	}
	for _, tt := range tests {
		if got := CountsAsOutage(tt.err); got != tt.want {
			t.Errorf("CountsAsOutage(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
