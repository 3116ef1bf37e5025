package analytics_api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/analytics"
	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/utils"
)

const OrganizerRole = "ORGANIZER"

type AnalyticsService interface {
	GetEventSales(ctx context.Context, eventID int64) (*analytics.EventSales, error)
}

type Handler struct {
	Service AnalyticsService
	Logger  *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(OrganizerRole))
		r.Get("/events/{eventId}/analytics", h.GetEventSales)
	})
}

func (h *Handler) GetEventSales(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		utils.WriteError(w, "invalid event id", apperrors.Validation("eventId", "must be a positive integer"))
		return
	}
	report, err := h.Service.GetEventSales(r.Context(), eventID)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Sales report for event %d failed: %v", eventID, err))
		utils.WriteError(w, "sales report unavailable", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("event sales", report))
}
