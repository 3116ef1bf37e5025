package booking_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/booking"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/utils"
)

type BookingService interface {
	CreateHold(ctx context.Context, req booking.HoldRequest) (*booking.Hold, error)
	CancelHold(ctx context.Context, userID string, holdIDs []int64) (int, error)
}

type Handler struct {
	Service BookingService
	Logger  *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/reservations", h.CreateReservation)
	r.Delete("/reservations", h.CancelReservation)
}

// CreateReservation answers POST /api/reservations with the held seats and the
// gateway redirect, or with the booked tickets when the order is free.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req booking.HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "invalid request body", apperrors.Validation("body", err.Error()))
		return
	}
	if id := auth.UserID(r.Context()); id != "" {
		req.UserID = id
	}
	req.ClientIP = clientIP(r)

	hold, err := h.Service.CreateHold(r.Context(), req)
	if err != nil {
		if apperrors.HTTPStatus(err) == http.StatusInternalServerError {
			h.Logger.Error("API", fmt.Sprintf("Reservation for event %d failed: %v", req.EventID, err))
		}
		utils.WriteError(w, "seats could not be reserved", err)
		return
	}

	message := "seats held, complete payment before expiry"
	if hold.Booked {
		message = "tickets booked"
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse(message, hold))
}

type cancelRequest struct {
	UserID  string  `json:"user_id"`
	HoldIDs []int64 `json:"hold_ids"`
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "invalid request body", apperrors.Validation("body", err.Error()))
		return
	}
	if id := auth.UserID(r.Context()); id != "" {
		req.UserID = id
	}

	released, err := h.Service.CancelHold(r.Context(), req.UserID, req.HoldIDs)
	if err != nil {
		utils.WriteError(w, "holds could not be released", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("holds released", map[string]int{"released": released}))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
