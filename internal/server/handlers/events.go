package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/floorlens/floorlens/internal/core"
	apperrors "github.com/floorlens/floorlens/internal/errors"
)

// EventLister reads the trade audit log.
type EventLister interface {
	ListTradeEvents(ctx context.Context, limit int) ([]core.TradeEvent, error)
}

// EventsHandler exposes the trade audit log over HTTP.
type EventsHandler struct {
	Events EventLister
}

// List returns recorded trade events, newest first. The optional
// limit query parameter caps the result size.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		respondWithError(w, r, apperrors.NewInternalError("trade event store not configured"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondWithError(w, r, apperrors.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	events, err := h.Events.ListTradeEvents(r.Context(), limit)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list trade events"))
		return
	}

	respondJSON(w, http.StatusOK, events)
}
