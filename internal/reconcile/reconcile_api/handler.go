package reconcile_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/utils"
)

const AdminRole = "ADMIN"

type ReconcileService interface {
	ListCases(ctx context.Context, status string) ([]models.ReconciliationCase, error)
	GetCase(ctx context.Context, id int64) (*models.ReconciliationCase, error)
	ResolveCase(ctx context.Context, id int64, note, operator string) (*models.ReconciliationCase, error)
}

type Handler struct {
	Service ReconcileService
	Logger  *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(AdminRole))
		r.Get("/admin/reconciliations", h.ListCases)
		r.Get("/admin/reconciliations/{caseId}", h.GetCase)
		r.Post("/admin/reconciliations/{caseId}/resolve", h.ResolveCase)
	})
}

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.Service.ListCases(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		utils.WriteError(w, "cases could not be listed", err)
		return
	}
	if cases == nil {
		cases = []models.ReconciliationCase{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reconciliation cases", cases))
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	c, err := h.Service.GetCase(r.Context(), id)
	if err != nil {
		utils.WriteError(w, "case not available", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reconciliation case", c))
}

type resolveRequest struct {
	Note string `json:"note"`
}

func (h *Handler) ResolveCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "invalid request body", apperrors.Validation("body", err.Error()))
		return
	}
	c, err := h.Service.ResolveCase(r.Context(), id, req.Note, auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, "case could not be resolved", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("case resolved", c))
}

func caseIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "caseId"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, "invalid case id", apperrors.Validation("caseId", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
