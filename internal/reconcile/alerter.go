package reconcile

import (
	"context"
	"fmt"
	"time"

	"ms-reservation/internal/logger"
	"ms-reservation/internal/metrics"
	"ms-reservation/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Alert is the message published for every new case.
type Alert struct {
	CaseID  int64     `json:"case_id"`
	TxnRef  string    `json:"txn_ref"`
	UserID  string    `json:"user_id"`
	EventID int64     `json:"event_id"`
	Amount  string    `json:"amount"`
	Reason  string    `json:"reason"`
	Detail  string    `json:"detail"`
	At      time.Time `json:"at"`
}

// Alerter surfaces paid-but-unfulfilled orders to operators: an ERROR log
// line, a counter and, when a publisher is set, a Kafka message.
type Alerter struct {
	Publisher Publisher
	Topic     string
	Logger    *logger.Logger
}

func NewAlerter(publisher Publisher, topic string, log *logger.Logger) *Alerter {
	return &Alerter{Publisher: publisher, Topic: topic, Logger: log}
}

func (a *Alerter) Raise(ctx context.Context, c *models.ReconciliationCase) {
	a.Logger.LogReconciliation(c.TxnRef, c.Reason, fmt.Sprintf("case %d: user %s paid %s for event %d: %s", c.ID, c.UserID, c.Amount.StringFixed(2), c.EventID, c.Detail))
	metrics.TrackReconciliation(c.Reason)

	if a.Publisher == nil {
		return
	}
	alert := Alert{
		CaseID:  c.ID,
		TxnRef:  c.TxnRef,
		UserID:  c.UserID,
		EventID: c.EventID,
		Amount:  c.Amount.StringFixed(2),
		Reason:  c.Reason,
		Detail:  c.Detail,
		At:      c.CreatedAt,
	}
	if err := a.Publisher.Publish(ctx, a.Topic, c.TxnRef, alert); err != nil {
		a.Logger.Error("RECONCILE", fmt.Sprintf("Alert for case %d not published: %v", c.ID, err))
	}
}
