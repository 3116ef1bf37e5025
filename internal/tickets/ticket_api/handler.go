package ticket_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/utils"
)

const ScannerRole = "SCANNER"

type TicketService interface {
	GetTicket(ctx context.Context, ticketID int64, userID string) (*models.Ticket, error)
	ListUserTickets(ctx context.Context, userID string) ([]models.Ticket, error)
	QRImage(ctx context.Context, ticketID int64, userID string) ([]byte, error)
	CheckIn(ctx context.Context, payload string) (*models.Ticket, error)
	CheckOut(ctx context.Context, payload string) (*models.Ticket, error)
}

type Handler struct {
	Service TicketService
	Logger  *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tickets", h.ListTickets)
	r.Get("/tickets/{ticketId}", h.GetTicket)
	r.Get("/tickets/{ticketId}/qr", h.QRImage)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(ScannerRole))
		r.Post("/tickets/checkin", h.CheckIn)
		r.Post("/tickets/checkout", h.CheckOut)
	})
}

// caller prefers the authenticated subject over the user_id query parameter.
func caller(r *http.Request) string {
	if id := auth.UserID(r.Context()); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.Service.ListUserTickets(r.Context(), caller(r))
	if err != nil {
		utils.WriteError(w, "tickets could not be listed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("tickets", tickets))
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := ticketIDParam(w, r)
	if !ok {
		return
	}
	ticket, err := h.Service.GetTicket(r.Context(), ticketID, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "ticket not available", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket", ticket))
}

func (h *Handler) QRImage(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := ticketIDParam(w, r)
	if !ok {
		return
	}
	png, err := h.Service.QRImage(r.Context(), ticketID, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "qr not available", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

type scanRequest struct {
	QRCode string `json:"qr_code"`
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.scan(w, r, "checked in", h.Service.CheckIn)
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.scan(w, r, "checked out", h.Service.CheckOut)
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request, done string, apply func(context.Context, string) (*models.Ticket, error)) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QRCode == "" {
		utils.WriteError(w, "invalid request body", apperrors.Validation("qr_code", "qr_code is required"))
		return
	}
	ticket, err := apply(r.Context(), req.QRCode)
	if err != nil {
		utils.WriteError(w, "scan refused", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(done, ticket))
}

func ticketIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ticketId"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, "invalid ticket id", apperrors.Validation("ticketId", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
