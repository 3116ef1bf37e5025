package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/utils"
)

type Handler struct {
	Emitter *SeatEventEmitter
	Logger  *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events/{eventId}/seats/stream", h.StreamSeats)
}

// StreamSeats streams HELD, BOOKED and AVAILABLE seat changes for one event.
func (h *Handler) StreamSeats(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		utils.WriteError(w, "invalid event id", apperrors.Validation("eventId", "must be a positive integer"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ctx := r.Context()
	updates := h.Emitter.Subscribe(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"event_id\":%d}\n\n", eventID)
	flusher.Flush()
	h.Logger.Debug("SSE", fmt.Sprintf("Seat stream opened for event %d", eventID))

	for {
		select {
		case evt, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to encode seat event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: seats\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Seat stream closed for event %d", eventID))
			return
		}
	}
}
