package settlement_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/settlement"
	"ms-reservation/internal/utils"
)

type SettlementService interface {
	Settle(ctx context.Context, params url.Values) (*settlement.Result, error)
}

type Handler struct {
	Service SettlementService
	Logger  *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/payments/vnpay/callback", h.Callback)
	r.Get("/payments/vnpay/ipn", h.IPN)
}

// Callback handles the buyer's redirect back from the gateway.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.Settle(r.Context(), r.URL.Query())
	if err != nil {
		if apperrors.HTTPStatus(err) == http.StatusInternalServerError {
			h.Logger.Error("API", fmt.Sprintf("Callback for %q failed: %v", r.URL.Query().Get("vnp_TxnRef"), err))
		}
		utils.WriteError(w, "payment could not be settled", err)
		return
	}

	message := "payment settled"
	switch {
	case result.Replayed:
		message = "payment already settled"
	case result.State == settlement.StateReleased:
		message = "payment failed, seats released"
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(message, result))
}

// ipnResponse is the acknowledgement body the gateway expects from the
// server-to-server notification.
type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// IPN answers the gateway's server-to-server notification. The gateway retries
// until it sees RspCode 00 or 02, so every final outcome maps onto one of
// those and only transient failures ask for a retry.
func (h *Handler) IPN(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.Settle(r.Context(), r.URL.Query())

	resp := ipnResponse{RspCode: "00", Message: "Confirm Success"}
	switch {
	case err == nil && result.Replayed:
		resp = ipnResponse{RspCode: "02", Message: "Order already confirmed"}
	case err == nil:
	case errors.Is(err, apperrors.ErrAuthenticity):
		resp = ipnResponse{RspCode: "97", Message: "Invalid signature"}
	case errors.Is(err, apperrors.ErrValidation):
		resp = ipnResponse{RspCode: "04", Message: "Invalid amount"}
	case errors.Is(err, apperrors.ErrNotFound):
		resp = ipnResponse{RspCode: "01", Message: "Order not found"}
	case errors.Is(err, apperrors.ErrReconciliation):
		resp = ipnResponse{RspCode: "02", Message: "Order already confirmed"}
	default:
		h.Logger.Error("API", fmt.Sprintf("IPN for %q failed: %v", r.URL.Query().Get("vnp_TxnRef"), err))
		resp = ipnResponse{RspCode: "99", Message: "Unknown error"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
