package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// BreakSource is the view of the reconciler the break endpoints need: the
// in-memory break log and the running counters.
type BreakSource interface {
	RecentBreaks(limit int) []domain.Break
	Stats() domain.Stats
}

// BreaksHandler serves the break log and reconciliation stats.
type BreaksHandler struct {
	source BreakSource
	logger *slog.Logger
}

// NewBreaksHandler creates a BreaksHandler over the given source.
func NewBreaksHandler(source BreakSource, logger *slog.Logger) *BreaksHandler {
	return &BreaksHandler{
		source: source,
		logger: logHandler(logger, "breaks"),
	}
}

// ListBreaks responds with the most recent breaks, newest first.
// GET /api/breaks?limit=N
func (h *BreaksHandler) ListBreaks(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 200, 1000)

	breaks := h.source.RecentBreaks(limit)
	if breaks == nil {
		breaks = []domain.Break{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"breaks": breaks,
		"count":  len(breaks),
	})
}

// GetStats responds with the reconciler's running counters.
// GET /api/stats
func (h *BreaksHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Stats())
}
