// Package handler exposes rank checks over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/fetcher"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/report"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
)

// APIKeyHeader carries a caller's own search API key. It takes precedence
// over an api_key body or form field.
const APIKeyHeader = "X-Search-Api-Key"

const (
	maxUploadBytes     = 5 << 20
	defaultHistoryRows = 100
	maxHistoryRows     = 1000
)

// RankChecker is satisfied by *service.Service.
type RankChecker interface {
	Check(ctx context.Context, keywords, sites []string) (*report.Report, error)
	History(ctx context.Context, keyword string, limit int) ([]store.Entry, error)
}

// CacheAdmin is satisfied by *cache.SearchCache.
type CacheAdmin interface {
	Invalidate(ctx context.Context) (int64, error)
	Stats() (hits, misses int64)
}

type Handler struct {
	checker RankChecker
	cache   CacheAdmin
	logger  *slog.Logger
}

// New creates a Handler. cache may be nil when caching is disabled.
func New(checker RankChecker, cache CacheAdmin) *Handler {
	return &Handler{
		checker: checker,
		cache:   cache,
		logger:  slog.Default().With("component", "rank-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/rankings", h.Rankings)
	mux.HandleFunc("GET /api/v1/rankings/history", h.History)
	mux.HandleFunc("GET /api/v1/rankings/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/rankings/cache/invalidate", h.InvalidateCache)
}

type rankRequest struct {
	Keywords    []string `json:"keywords"`
	Primary     string   `json:"primary"`
	Competitors []string `json:"competitors"`
	APIKey      string   `json:"api_key"`
}

// checkRequest is a parsed rank check.
type checkRequest struct {
	keywords []string
	sites    []string
	apiKey   string
}

type rankCell struct {
	Site  string       `json:"site"`
	Rank  *int         `json:"rank"`
	Style report.Style `json:"style"`
}

type rankRow struct {
	Keyword   string     `json:"keyword"`
	Ranks     []rankCell `json:"ranks"`
	PixelRank *int       `json:"pixel_rank"`
}

type rankResponse struct {
	Sites       []string         `json:"sites"`
	Rows        []rankRow        `json:"rows"`
	Summaries   []report.Summary `json:"summaries"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Rankings accepts either a JSON body or a multipart form with a CSV
// "file" field plus "primary" and "competitors" fields. Without a caller
// key the service's configured key is used.
func (h *Handler) Rankings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	req, err := h.parseRankRequest(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		req.apiKey = key
	}
	ctx = fetcher.WithAPIKey(ctx, req.apiKey)

	rep, err := h.checker.Check(ctx, req.keywords, req.sites)
	if err != nil {
		log.Error("rank check failed", "error", err)
		h.writeAppError(w, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="keyword_rankings.csv"`)
		w.WriteHeader(http.StatusOK)
		if err := rep.WriteCSV(w); err != nil {
			log.Error("failed to write csv report", "error", err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(rep))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultHistoryRows
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryRows)
	}
	entries, err := h.checker.History(r.Context(), strings.TrimSpace(q.Get("keyword")), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("history lookup failed", "error", err)
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	hits, misses := h.cache.Stats()
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  true,
		"hits":     hits,
		"misses":   misses,
		"hit_rate": hitRate,
	})
}

func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusNotFound, "cache is not enabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys_deleted": deleted})
}

func (h *Handler) parseRankRequest(r *http.Request) (checkRequest, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		return parseUpload(r)
	}
	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return checkRequest{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON body")
	}
	keywords := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		keywords = append(keywords, strings.TrimSpace(kw))
	}
	return checkRequest{
		keywords: keywords,
		sites:    report.SiteList(req.Primary, strings.Join(req.Competitors, ",")),
		apiKey:   strings.TrimSpace(req.APIKey),
	}, nil
}

func parseUpload(r *http.Request) (checkRequest, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return checkRequest{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid upload: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return checkRequest{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "a CSV file is required in the 'file' field")
	}
	defer file.Close()
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".csv" {
		return checkRequest{}, apperrors.Newf(apperrors.ErrUnsupportedFile, http.StatusUnsupportedMediaType,
			"keyword file must be .csv, got %q", ext)
	}
	keywords, err := report.ReadKeywords(file)
	if err != nil {
		return checkRequest{}, err
	}
	return checkRequest{
		keywords: keywords,
		sites:    report.SiteList(r.FormValue("primary"), r.FormValue("competitors")),
		apiKey:   strings.TrimSpace(r.FormValue("api_key")),
	}, nil
}

func wantsCSV(r *http.Request) bool {
	if r.URL.Query().Get("format") == "csv" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}

func toResponse(rep *report.Report) rankResponse {
	rows := make([]rankRow, 0, len(rep.Records))
	for _, rec := range rep.Records {
		cells := make([]rankCell, 0, len(rep.Sites))
		for _, site := range rep.Sites {
			rank := rec.Ranks[site]
			cells = append(cells, rankCell{Site: site, Rank: rank, Style: report.Highlight(rank)})
		}
		rows = append(rows, rankRow{Keyword: rec.Keyword, Ranks: cells, PixelRank: rec.PixelRank})
	}
	return rankResponse{
		Sites:       rep.Sites,
		Rows:        rows,
		Summaries:   rep.Summaries(),
		GeneratedAt: rep.GeneratedAt,
	}
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		h.writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	status := apperrors.HTTPStatusCode(err)
	var appErr *apperrors.AppError
	if status == http.StatusInternalServerError && !errors.As(err, &appErr) {
		h.writeError(w, status, "internal error")
		return
	}
	h.writeError(w, status, apperrors.Message(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
