package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// EventSource reads back recently published spike events. It is declared
// locally so the handler package does not depend on the Redis event bus.
type EventSource interface {
	Recent(ctx context.Context, count int) ([]domain.SpikeEvent, error)
}

// SpikesHandler serves the recent spike events endpoint.
type SpikesHandler struct {
	events EventSource
	logger *slog.Logger
}

// NewSpikesHandler creates a SpikesHandler with the given event source and
// logger.
func NewSpikesHandler(events EventSource, logger *slog.Logger) *SpikesHandler {
	return &SpikesHandler{
		events: events,
		logger: logger,
	}
}

// listSpikesResponse wraps the list endpoint output.
type listSpikesResponse struct {
	Spikes []domain.SpikeEvent `json:"spikes"`
	Count  int                 `json:"count"`
}

// ListRecent returns the most recent spike events, newest first.
// GET /api/spikes?limit=50
func (h *SpikesHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	events, err := h.events.Recent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list spikes failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list spikes")
		return
	}
	if events == nil {
		events = []domain.SpikeEvent{}
	}

	writeJSON(w, http.StatusOK, listSpikesResponse{
		Spikes: events,
		Count:  len(events),
	})
}
