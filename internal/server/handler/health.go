package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// StatsSource exposes a snapshot of reconciliation counters.
type StatsSource interface {
	Stats() domain.Stats
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode   string
	stats  StatsSource
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting the given run mode.
// stats may be nil, in which case counters are omitted.
func NewHealthHandler(mode string, stats StatsSource, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{mode: mode, stats: stats, logger: logger}
}

// HealthCheck responds with liveness status plus reconciliation counters.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"mode":      h.mode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.stats != nil {
		st := h.stats.Stats()
		body["processed"] = st.Processed
		body["detected_breaks"] = st.DetectedBreaks
		body["avg_detect_ms"] = st.AvgDetectMs
	}
	writeJSON(w, http.StatusOK, body)
}
