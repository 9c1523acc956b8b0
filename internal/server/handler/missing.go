package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// MissingHandler serves the journal-backed view of trades past the SLA with
// no confirmation on record.
type MissingHandler struct {
	journal domain.JournalStore
	sla     time.Duration
	logger  *slog.Logger
}

// NewMissingHandler creates a MissingHandler. journal may be nil, in which
// case the endpoint reports that the journal is disabled.
func NewMissingHandler(journal domain.JournalStore, sla time.Duration, logger *slog.Logger) *MissingHandler {
	return &MissingHandler{
		journal: journal,
		sla:     sla,
		logger:  logHandler(logger, "missing"),
	}
}

// ListMissing responds with journaled trades executed before now-SLA that
// have no matching confirmation.
// GET /api/missing?limit=N
func (h *MissingHandler) ListMissing(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal store is not enabled")
		return
	}

	limit := parseLimit(r, 200, 1000)
	cutoff := time.Now().UTC().Add(-h.sla)

	missing, err := h.journal.ListMissing(r.Context(), cutoff, limit)
	if err != nil {
		h.logger.Error("list missing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to query journal")
		return
	}
	if missing == nil {
		missing = []domain.MissingTrade{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cutoff":  cutoff.Format(time.RFC3339),
		"missing": missing,
		"count":   len(missing),
	})
}
