package schedule_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/schedule"
	"ms-reservation/internal/utils"
)

type ScheduleService interface {
	FindFreeAreas(ctx context.Context, start, end time.Time) ([]models.VenueArea, error)
	ScheduleEvent(ctx context.Context, draft schedule.EventDraft) (*models.Event, error)
	ApproveEvent(ctx context.Context, eventID int64) (*models.Event, error)
	CancelEvent(ctx context.Context, eventID int64) error
}

type Handler struct {
	Service ScheduleService
	Logger  *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/areas/free", h.FreeAreas)
	r.Post("/events", h.CreateEvent)
	r.Post("/events/{eventId}/approve", h.ApproveEvent)
	r.Post("/events/{eventId}/cancel", h.CancelEvent)
}

// FreeAreas answers GET /api/areas/free?start=<RFC3339>&end=<RFC3339>.
func (h *Handler) FreeAreas(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		utils.WriteError(w, "invalid query", apperrors.Validation("start", "start must be RFC3339"))
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		utils.WriteError(w, "invalid query", apperrors.Validation("end", "end must be RFC3339"))
		return
	}

	areas, err := h.Service.FindFreeAreas(r.Context(), start, end)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Free area lookup failed: %v", err))
		utils.WriteError(w, "free area lookup failed", err)
		return
	}
	if areas == nil {
		areas = []models.VenueArea{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("free areas", areas))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var draft schedule.EventDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		utils.WriteError(w, "invalid request body", apperrors.Validation("body", err.Error()))
		return
	}

	event, err := h.Service.ScheduleEvent(r.Context(), draft)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Scheduling in area %d refused: %v", draft.AreaID, err))
		utils.WriteError(w, "event could not be scheduled", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("event scheduled", event))
}

func (h *Handler) ApproveEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	event, err := h.Service.ApproveEvent(r.Context(), eventID)
	if err != nil {
		utils.WriteError(w, "event could not be approved", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("event approved", event))
}

func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	if err := h.Service.CancelEvent(r.Context(), eventID); err != nil {
		utils.WriteError(w, "event could not be cancelled", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("event cancelled", nil))
}

func eventIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, "invalid event id", apperrors.Validation("eventId", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
