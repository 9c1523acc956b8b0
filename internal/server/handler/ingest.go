package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/reconbot/internal/domain"
)

// maxIngestBody caps the accepted request body for ingest endpoints.
const maxIngestBody = 1 << 20

// EventQueue is the enqueue side of the reconciler.
type EventQueue interface {
	Enqueue(ctx context.Context, kind domain.EventKind, payload []byte) error
}

// IngestHandler accepts trade and confirmation records over HTTP, journals
// them, and enqueues them for reconciliation. The journal is optional; when
// it is nil records are only enqueued.
type IngestHandler struct {
	queue   EventQueue
	journal domain.JournalStore
	logger  *slog.Logger
}

// NewIngestHandler creates an IngestHandler. journal may be nil.
func NewIngestHandler(queue EventQueue, journal domain.JournalStore, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		queue:   queue,
		journal: journal,
		logger:  logHandler(logger, "ingest"),
	}
}

// PostTrade validates and enqueues a trade record.
// POST /api/ingest/trade
func (h *IngestHandler) PostTrade(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	trade, err := domain.DecodeTrade(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.journal != nil {
		if err := h.journal.RecordTrade(r.Context(), trade, body); err != nil {
			h.logger.Error("journal trade failed",
				slog.String("trade_id", trade.TradeID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to journal trade")
			return
		}
	}

	if err := h.enqueue(w, r, domain.EventTrade, body); err != nil {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "queued",
		"trade_id": trade.TradeID,
	})
}

// PostConfirm validates and enqueues a confirmation record.
// POST /api/ingest/confirm
func (h *IngestHandler) PostConfirm(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	confirm, err := domain.DecodeConfirm(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.journal != nil {
		if err := h.journal.RecordConfirm(r.Context(), confirm, body); err != nil {
			h.logger.Error("journal confirm failed",
				slog.String("trade_id", confirm.TradeID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to journal confirm")
			return
		}
	}

	if err := h.enqueue(w, r, domain.EventConfirm, body); err != nil {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "queued",
		"trade_id": confirm.TradeID,
	})
}

// enqueue pushes the payload onto the event queue, translating queue errors
// into HTTP responses. It returns a non-nil error when a response was
// already written.
func (h *IngestHandler) enqueue(w http.ResponseWriter, r *http.Request, kind domain.EventKind, payload []byte) error {
	err := h.queue.Enqueue(r.Context(), kind, payload)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrQueueClosed) {
		writeError(w, http.StatusServiceUnavailable, "reconciler is shutting down")
		return err
	}
	h.logger.Error("enqueue failed",
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusServiceUnavailable, "failed to enqueue event")
	return err
}
