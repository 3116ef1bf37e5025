package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for holds and settlements.
const (
	OutcomeCreated        = "created"
	OutcomeConflict       = "conflict"
	OutcomeRejected       = "rejected"
	OutcomeReleased       = "released"
	OutcomeSettled        = "settled"
	OutcomeReplayed       = "replayed"
	OutcomePaymentFailed  = "payment_failed"
	OutcomeReconciliation = "reconciliation"
	OutcomeAuthenticity   = "authenticity"
	OutcomeInvalid        = "invalid"
	OutcomeError          = "error"
)

var (
	holdOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_hold_operations_total",
			Help: "Hold requests by outcome",
		},
		[]string{"outcome"},
	)

	heldSeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_held_seats_total",
			Help: "Seats moved to PENDING",
		},
	)

	releasedHolds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_released_holds_total",
			Help: "PENDING tickets deleted, by trigger",
		},
		[]string{"trigger"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_settlements_total",
			Help: "Payment callbacks by outcome",
		},
		[]string{"outcome"},
	)

	settlementDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reservation_settlement_duration_seconds",
			Help:    "Time spent processing a payment callback",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)

	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_reconciliation_total",
			Help: "Payments that need operator reconciliation",
		},
		[]string{"reason"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_notifications_total",
			Help: "Ticket confirmations by delivery status",
		},
		[]string{"status"},
	)
)

func TrackHold(outcome string, seats int) {
	holdOperations.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCreated {
		heldSeats.Add(float64(seats))
	}
}

func TrackRelease(trigger string, count int64) {
	if count > 0 {
		releasedHolds.WithLabelValues(trigger).Add(float64(count))
	}
}

func TrackSettlement(outcome string, started time.Time) {
	settlements.WithLabelValues(outcome).Inc()
	settlementDuration.Observe(time.Since(started).Seconds())
}

func TrackReconciliation(reason string) {
	reconciliations.WithLabelValues(reason).Inc()
}

func TrackNotification(status string) {
	notifications.WithLabelValues(status).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
