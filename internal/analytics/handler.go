package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// SnapshotReader is satisfied by *SnapshotStore.
type SnapshotReader interface {
	Latest(ctx context.Context) ([]byte, time.Time, error)
}

type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotReader
	logger     *slog.Logger
}

// NewHandler serves live stats from aggregator. snapshots may be nil when
// persistence is disabled.
func NewHandler(aggregator *Aggregator, snapshots SnapshotReader) *Handler {
	return &Handler{
		aggregator: aggregator,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshot", h.Snapshot)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

// Snapshot returns the last persisted stats, which survive restarts of the
// service unlike the live counters.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "snapshots are disabled"})
		return
	}
	payload, at, err := h.snapshots.Latest(r.Context())
	if err != nil {
		h.logger.Error("failed to load snapshot", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if payload == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot saved yet"})
		return
	}
	h.writeJSON(w, http.StatusOK, struct {
		SavedAt time.Time       `json:"saved_at"`
		Stats   json.RawMessage `json:"stats"`
	}{at, payload})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
