package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-reservation/internal/apperrors"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Detail    interface{} `json:"detail,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteError renders err with the status from the error taxonomy. Seat and
// resource conflicts carry their identity in Detail so clients can show
// "seat X unavailable". Unclassified errors are not echoed back.
func WriteError(w http.ResponseWriter, message string, err error) {
	status := apperrors.HTTPStatus(err)
	resp := ErrorResponse(message, err.Error())

	var validation *apperrors.ValidationError
	var conflict *apperrors.ConflictError
	switch {
	case errors.As(err, &validation):
		resp.Detail = validation
	case errors.As(err, &conflict):
		resp.Detail = conflict
	case status == http.StatusInternalServerError:
		resp.Error = "internal error"
	}
	WriteJSON(w, status, resp)
}
