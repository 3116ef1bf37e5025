package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("resource conflict")
	ErrAuthenticity   = errors.New("authenticity check failed")
	ErrReconciliation = errors.New("payment requires reconciliation")
	ErrNotification   = errors.New("notification delivery failed")
	ErrNotFound       = errors.New("not found")
)

// Seat-level reasons reported to clients.
const (
	ReasonNotConfigured    = "not_configured"
	ReasonWrongArea        = "wrong_area"
	ReasonNotAvailable     = "not_available"
	ReasonNoSeatType       = "no_seat_type"
	ReasonNoActiveCategory = "no_active_category"
	ReasonTaken            = "taken"
	ReasonQuotaExceeded    = "quota_exceeded"
)

// ValidationError is malformed or unacceptable input. Nothing was mutated.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	SeatID  int64  `json:"seat_id,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.SeatID != 0 {
		return fmt.Sprintf("seat %d: %s: %s", e.SeatID, e.Reason, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Validation(field, message string) error {
	return &ValidationError{Field: field, Reason: "invalid", Message: message}
}

func SeatInvalid(seatID int64, reason, message string) error {
	return &ValidationError{SeatID: seatID, Reason: reason, Message: message}
}

// ConflictError means the resource is already taken. The store was left unchanged,
// so the caller may retry with a different resource.
type ConflictError struct {
	Resource string `json:"resource"`
	ID       int64  `json:"id"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d unavailable (%s): %s", e.Resource, e.ID, e.Reason, e.Message)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func SeatTaken(seatID int64) error {
	return &ConflictError{Resource: "seat", ID: seatID, Reason: ReasonTaken, Message: "seat already held or sold for this event"}
}

// AuthenticityError is a failed signature or token check on untrusted input.
type AuthenticityError struct {
	Source string
	Reason string
}

func (e *AuthenticityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, e.Reason)
}

func (e *AuthenticityError) Is(target error) bool { return target == ErrAuthenticity }

// ReconciliationError is raised after payment was confirmed but stock could not be
// secured. It always goes to the alerting path as well as the caller.
type ReconciliationError struct {
	TxnRef string
	Reason string
	CaseID int64
	Err    error
}

func (e *ReconciliationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reconciliation required for %s (%s): %v", e.TxnRef, e.Reason, e.Err)
	}
	return fmt.Sprintf("reconciliation required for %s (%s)", e.TxnRef, e.Reason)
}

func (e *ReconciliationError) Is(target error) bool { return target == ErrReconciliation }

func (e *ReconciliationError) Unwrap() error { return e.Err }

// NotificationError is only ever logged.
type NotificationError struct {
	TicketIDs []int64
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification for tickets %v failed: %v", e.TicketIDs, e.Err)
}

func (e *NotificationError) Is(target error) bool { return target == ErrNotification }

func (e *NotificationError) Unwrap() error { return e.Err }

func NotFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
}

// HTTPStatus maps the taxonomy onto response codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrReconciliation):
		return http.StatusConflict
	case errors.Is(err, ErrAuthenticity):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
