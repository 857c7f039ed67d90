// Package handler exposes the college predictor over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/classifier"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/course"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/export"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "predictor-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/datasets", h.Datasets)
	mux.HandleFunc("POST /api/v1/datasets/invalidate", h.Invalidate)
	mux.HandleFunc("GET /api/v1/options", h.Options)
	mux.HandleFunc("GET /api/v1/predict", h.Predict)
	mux.HandleFunc("GET /api/v1/predict/export", h.Export)
}

type predictResponse struct {
	Dataset          string             `json:"dataset"`
	Curve            classifier.Curve   `json:"curve"`
	Granularity      course.Granularity `json:"granularity"`
	IncludeDeviation bool               `json:"include_deviation"`
	Counts           map[string]int     `json:"counts"`
	*classifier.Result
}

func (h *Handler) Datasets(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"datasets": h.svc.Datasets()})
}

func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("dataset")
	opts, err := h.svc.Options(r.Context(), name)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"dataset":    name,
		"options":    opts,
		"categories": course.Categories(h.svc.Config().Granularity),
	})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	name, q, err := h.parseQuery(r.URL.Query())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	res, err := h.svc.Predict(r.Context(), name, q)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	cfg := h.svc.Config()
	counts := make(map[string]int, len(classifier.Buckets))
	for _, b := range classifier.Buckets {
		counts[string(b)] = len(res.Bucket(b))
	}
	h.writeJSON(w, http.StatusOK, predictResponse{
		Dataset:          name,
		Curve:            cfg.Curve,
		Granularity:      cfg.Granularity,
		IncludeDeviation: cfg.IncludeDeviation,
		Counts:           counts,
		Result:           res,
	})
}

// Export answers the same query as Predict with an .xlsx workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	name, q, err := h.parseQuery(r.URL.Query())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	res, err := h.svc.Predict(r.Context(), name, q)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	f, err := export.Build(res, h.svc.Config().IncludeDeviation)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="college_predictions_rank_%d.xlsx"`, q.Rank))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		logger.FromContext(r.Context()).Error("failed to write workbook", "error", err)
	}
}

func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("dataset")
	if err := h.svc.Invalidate(name); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if name == "" {
		name = "*"
	}
	logger.FromContext(r.Context()).Info("dataset cache invalidated", "dataset", name)
	h.writeJSON(w, http.StatusOK, map[string]string{"invalidated": name})
}

func (h *Handler) parseQuery(v url.Values) (string, classifier.Query, error) {
	errs := make(map[string]string)
	var q classifier.Query

	rank, err := strconv.Atoi(strings.TrimSpace(v.Get("rank")))
	switch {
	case v.Get("rank") == "":
		errs["rank"] = "rank is required"
	case err != nil || rank < 1:
		errs["rank"] = "rank must be a positive integer"
	default:
		q.Rank = rank
	}
	if q.Quota = strings.TrimSpace(v.Get("quota")); q.Quota == "" {
		errs["quota"] = "quota is required"
	}
	if q.SeatType = strings.TrimSpace(v.Get("seat_type")); q.SeatType == "" {
		errs["seat_type"] = "seat_type is required"
	}
	q.Gender = strings.TrimSpace(v.Get("gender"))
	if s := v.Get("category"); s != "" {
		c, err := course.ParseCategory(s, h.svc.Config().Granularity)
		if err != nil {
			errs["category"] = err.Error()
		}
		q.Category = c
	}
	if len(errs) > 0 {
		return "", q, &apperrors.ValidationError{Fields: errs}
	}
	return strings.TrimSpace(v.Get("dataset")), q, nil
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	var appErr *apperrors.AppError
	if status >= http.StatusInternalServerError && !errors.As(err, &appErr) {
		log.Error("predictor request failed", "error", err)
		h.writeError(w, status, "internal error")
		return
	}
	log.Warn("predictor request rejected", "status", status, "error", err)
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
