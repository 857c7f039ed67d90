package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/config"
)

var (
	// ErrNoOrganicResults is returned when a response carries no
	// organic_results field, which is how the API reports most failures.
	ErrNoOrganicResults = errors.New("response has no organic_results")
	// ErrUnauthorized is returned when the API rejects the credential.
	ErrUnauthorized = errors.New("search API rejected the API key")
)

type apiKeyKey struct{}

// WithAPIKey returns a context whose searches authenticate with apiKey
// instead of the configured key. An empty apiKey leaves ctx unchanged.
func WithAPIKey(ctx context.Context, apiKey string) context.Context {
	if apiKey == "" {
		return ctx
	}
	return context.WithValue(ctx, apiKeyKey{}, apiKey)
}

// APIKeyFromContext returns the key set by WithAPIKey, or "".
func APIKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(apiKeyKey{}).(string)
	return key
}

// CountsAsOutage reports whether a search error should count against the
// circuit breaker. Caller cancellations and rejected credentials say
// nothing about the health of the API.
func CountsAsOutage(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrUnauthorized)
}

// OrganicResult is one organic entry of a results page.
type OrganicResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
}

type searchResponse struct {
	OrganicResults *[]OrganicResult `json:"organic_results"`
	Error          string           `json:"error"`
}

// Client queries a SerpAPI-compatible search endpoint with a fixed locale
// and device profile.
type Client struct {
	endpoint string
	apiKey   string
	params   config.SERPConfig
	http     *http.Client
}

// NewClient builds a Client from cfg. The API key is taken from cfg.APIKey
// unless apiKey is non-empty.
func NewClient(cfg config.SERPConfig, apiKey string) *Client {
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   apiKey,
		params:   cfg,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     60 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Search returns the organic results for query in rank order. A key set on
// ctx with WithAPIKey overrides the configured one.
func (c *Client) Search(ctx context.Context, query string) ([]OrganicResult, error) {
	apiKey := c.apiKey
	if key := APIKeyFromContext(ctx); key != "" {
		apiKey = key
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(query, apiKey), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w (HTTP %d)", ErrUnauthorized, resp.StatusCode)
	}
	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decoding search response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned HTTP %d: %s", resp.StatusCode, sr.Error)
	}
	if sr.OrganicResults == nil {
		if sr.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoOrganicResults, sr.Error)
		}
		return nil, ErrNoOrganicResults
	}
	return *sr.OrganicResults, nil
}

func (c *Client) requestURL(query, apiKey string) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("num", strconv.Itoa(c.params.ResultCount))
	if c.params.Engine != "" {
		q.Set("engine", c.params.Engine)
	}
	if c.params.Device != "" {
		q.Set("device", c.params.Device)
	}
	if c.params.Country != "" {
		q.Set("gl", c.params.Country)
	}
	if c.params.Language != "" {
		q.Set("hl", c.params.Language)
	}
	if c.params.Location != "" {
		q.Set("uule", c.params.Location)
	}
	q.Set("api_key", apiKey)
	return c.endpoint + "?" + q.Encode()
}
