package catalog_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/catalog"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/utils"
)

type CatalogService interface {
	Table(ctx context.Context, eventID int64) (*catalog.Table, error)
	Configure(ctx context.Context, eventID int64, inputs []catalog.CategoryInput) (*catalog.Table, error)
}

type Handler struct {
	Service CatalogService
	Logger  *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events/{eventId}/categories", h.GetCategories)
	r.Put("/events/{eventId}/categories", h.PutCategories)
}

func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil {
		utils.WriteError(w, "invalid event id", apperrors.Validation("eventId", "must be an integer"))
		return
	}
	table, err := h.Service.Table(r.Context(), eventID)
	if err != nil {
		utils.WriteError(w, "categories unavailable", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("categories", table.Categories()))
}

// PutCategories replaces the event's ticket categories, one per seat type.
func (h *Handler) PutCategories(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil {
		utils.WriteError(w, "invalid event id", apperrors.Validation("eventId", "must be an integer"))
		return
	}
	var body struct {
		Categories []catalog.CategoryInput `json:"categories"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, "invalid request body", apperrors.Validation("body", err.Error()))
		return
	}

	table, err := h.Service.Configure(r.Context(), eventID, body.Categories)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Category update for event %d failed: %v", eventID, err))
		utils.WriteError(w, "categories not updated", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("categories updated", table.Categories()))
}
