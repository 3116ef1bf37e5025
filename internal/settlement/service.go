// Package settlement turns a signed gateway callback into booked tickets. A
// callback is processed at most once per merchant transaction reference; later
// deliveries replay the stored outcome.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/descriptor"
	"ms-reservation/internal/gateway"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/metrics"
	"ms-reservation/internal/models"
	"ms-reservation/internal/settlement/db"
)

// Processing states, in order.
const (
	StateReceived          = "RECEIVED"
	StateSignatureVerified = "SIGNATURE_VERIFIED"
	StateAmountCodeChecked = "AMOUNT_CODE_CHECKED"
	StateOrderResolved     = "ORDER_RESOLVED"
	StateSettled           = "SETTLED"
	StateReleased          = "RELEASED"
)

// Reconciliation reasons.
const (
	ReasonAmountMismatch = "amount_mismatch"
	ReasonSeatTaken      = "seat_taken"
	ReasonEventStarted   = "event_started"
	ReasonPaymentFailed  = "payment_failed"
)

type DBLayer interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	Categories(ctx context.Context, ids []int64) (map[int64]models.CategoryTicket, error)
	FindSettlement(ctx context.Context, txnRef string) (*models.Bill, []models.ConfirmedTicket, error)
	Finalize(ctx context.Context, bill *models.Bill, order db.Order, payload func(int64) string) ([]models.ConfirmedTicket, error)
	RecordReconciliation(ctx context.Context, bill *models.Bill, c *models.ReconciliationCase) (*models.ReconciliationCase, error)
	FindCase(ctx context.Context, txnRef string) (*models.ReconciliationCase, error)
}

type CallbackVerifier interface {
	VerifyCallback(params url.Values) (gateway.Callback, error)
}

type DescriptorParser interface {
	Parse(raw string) (descriptor.Descriptor, error)
}

// HoldReleaser gives holds back to the pool. Releasing a booked or missing
// hold is a no-op.
type HoldReleaser interface {
	Release(ctx context.Context, holdIDs []int64, trigger string) (int, error)
}

type Alerter interface {
	Raise(ctx context.Context, c *models.ReconciliationCase)
}

type QRPayloader interface {
	Payload(ticketID int64) string
}

type SeatFeed interface {
	Publish(evt models.SeatStatusEvent)
}

type Notifier interface {
	Dispatch(c models.TicketConfirmation)
}

// Result is what the callback endpoint reports back.
type Result struct {
	State    string                   `json:"state"`
	TxnRef   string                   `json:"txn_ref"`
	BillID   int64                    `json:"bill_id,omitempty"`
	Total    decimal.Decimal          `json:"total"`
	Tickets  []models.ConfirmedTicket `json:"tickets,omitempty"`
	Replayed bool                     `json:"replayed"`
	Reason   string                   `json:"reason,omitempty"`
}

// Service settles callbacks. Seats and Notifier are optional.
type Service struct {
	DB       DBLayer
	Gateway  CallbackVerifier
	Parser   DescriptorParser
	Holds    HoldReleaser
	Alerter  Alerter
	QR       QRPayloader
	Seats    SeatFeed
	Notifier Notifier
	Logger   *logger.Logger
	Currency string

	now func() time.Time
}

func NewService(store DBLayer, gw CallbackVerifier, parser DescriptorParser, holds HoldReleaser, alerter Alerter, qr QRPayloader, currency string, log *logger.Logger) *Service {
	return &Service{
		DB:       store,
		Gateway:  gw,
		Parser:   parser,
		Holds:    holds,
		Alerter:  alerter,
		QR:       qr,
		Logger:   log,
		Currency: currency,
		now:      time.Now,
	}
}

// settlement carries one callback through the state machine.
type settlement struct {
	callback   gateway.Callback
	descriptor descriptor.Descriptor
	expected   decimal.Decimal
	event      *models.Event
	state      string
}

func (s *Service) advance(st *settlement, state, message string) {
	st.state = state
	s.Logger.LogSettlement(state, st.callback.TxnRef, message)
}

// Settle verifies and applies one gateway callback.
func (s *Service) Settle(ctx context.Context, params url.Values) (*Result, error) {
	started := time.Now()
	result, err := s.settle(ctx, params)
	metrics.TrackSettlement(outcome(result, err), started)
	return result, err
}

func outcome(result *Result, err error) string {
	switch {
	case err == nil && result.Replayed:
		return metrics.OutcomeReplayed
	case err == nil && result.State == StateReleased:
		return metrics.OutcomePaymentFailed
	case err == nil:
		return metrics.OutcomeSettled
	case errors.Is(err, apperrors.ErrAuthenticity):
		return metrics.OutcomeAuthenticity
	case errors.Is(err, apperrors.ErrReconciliation):
		return metrics.OutcomeReconciliation
	case errors.Is(err, apperrors.ErrValidation):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

func (s *Service) settle(ctx context.Context, params url.Values) (*Result, error) {
	st := &settlement{state: StateReceived}

	callback, err := s.Gateway.VerifyCallback(params)
	if err != nil {
		if errors.Is(err, apperrors.ErrAuthenticity) {
			s.Logger.LogSecurity("CALLBACK_SIGNATURE", fmt.Sprintf("Rejected callback for %q: %v", params.Get("vnp_TxnRef"), err))
		}
		return nil, err
	}
	st.callback = callback
	s.advance(st, StateSignatureVerified, fmt.Sprintf("code=%s amount=%d", callback.ResponseCode, callback.AmountMinor))

	d, err := s.Parser.Parse(callback.OrderInfo)
	switch {
	case errors.Is(err, descriptor.ErrBadSignature):
		s.Logger.LogSecurity("DESCRIPTOR_SIGNATURE", fmt.Sprintf("Rejected descriptor for %s: %v", callback.TxnRef, err))
		return nil, &apperrors.AuthenticityError{Source: "descriptor", Reason: err.Error()}
	case err != nil:
		return nil, apperrors.Validation("vnp_OrderInfo", err.Error())
	case d.TxnRef != callback.TxnRef:
		s.Logger.LogSecurity("DESCRIPTOR_MISMATCH", fmt.Sprintf("Descriptor for %s arrived with %s", d.TxnRef, callback.TxnRef))
		return nil, &apperrors.AuthenticityError{Source: "descriptor", Reason: "transaction reference does not match"}
	}
	st.descriptor = d

	if !callback.Succeeded() {
		return s.paymentFailed(ctx, st)
	}

	// Prices may have changed since the first delivery; only new settlements
	// are priced against the current categories.
	if result, err := s.replay(ctx, st); result != nil || err != nil {
		if result != nil {
			s.resendConfirmation(ctx, st, result)
		}
		return result, err
	}

	if err := s.checkAmount(ctx, st); err != nil {
		return nil, err
	}
	s.advance(st, StateAmountCodeChecked, "amount "+st.expected.StringFixed(2))

	event, err := s.DB.GetEvent(ctx, d.EventID)
	if err != nil {
		return nil, err
	}
	st.event = event
	if !event.StartTime.After(s.now()) || event.Status == models.EventCancelled {
		return nil, s.reconcile(ctx, st, ReasonEventStarted, fmt.Sprintf("event %d is %s and starts %s", event.ID, event.Status, event.StartTime.Format(time.RFC3339)))
	}
	s.advance(st, StateOrderResolved, fmt.Sprintf("%d seats for event %d", len(d.Assignments), d.EventID))

	return s.finalize(ctx, st)
}

func (s *Service) paymentFailed(ctx context.Context, st *settlement) (*Result, error) {
	released, err := s.Holds.Release(ctx, st.descriptor.HoldIDs(), ReasonPaymentFailed)
	if err != nil {
		return nil, fmt.Errorf("release holds of %s: %w", st.callback.TxnRef, err)
	}
	s.advance(st, StateReleased, fmt.Sprintf("gateway code %s, released %d holds", st.callback.ResponseCode, released))
	return &Result{State: StateReleased, TxnRef: st.callback.TxnRef, Reason: ReasonPaymentFailed}, nil
}

// checkAmount recomputes the order price from the descriptor and compares it
// with what the gateway charged, in minor units.
func (s *Service) checkAmount(ctx context.Context, st *settlement) error {
	d := st.descriptor
	ids := make([]int64, 0, len(d.Assignments))
	for _, a := range d.Assignments {
		ids = append(ids, a.CategoryID)
	}
	categories, err := s.DB.Categories(ctx, ids)
	if err != nil {
		return err
	}

	expected := decimal.Zero
	for _, a := range d.Assignments {
		c, ok := categories[a.CategoryID]
		if !ok || c.EventID != d.EventID {
			return s.amountMismatch(ctx, st, fmt.Sprintf("category %d of seat %d is not part of event %d", a.CategoryID, a.SeatID, d.EventID))
		}
		expected = expected.Add(c.Price)
	}
	st.expected = expected

	minor, err := gateway.MinorUnits(expected)
	if err != nil {
		return s.amountMismatch(ctx, st, err.Error())
	}
	if minor != st.callback.AmountMinor {
		return s.amountMismatch(ctx, st, fmt.Sprintf("charged %d, order costs %d", st.callback.AmountMinor, minor))
	}
	return nil
}

func (s *Service) amountMismatch(ctx context.Context, st *settlement, detail string) error {
	if err := s.reconcile(ctx, st, ReasonAmountMismatch, detail); err != nil {
		var recErr *apperrors.ReconciliationError
		if !errors.As(err, &recErr) {
			return err
		}
	}
	return apperrors.Validation("vnp_Amount", detail)
}

// replay returns the stored outcome when the transaction was settled before.
func (s *Service) replay(ctx context.Context, st *settlement) (*Result, error) {
	bill, tickets, err := s.DB.FindSettlement(ctx, st.callback.TxnRef)
	if err != nil || bill == nil {
		return nil, err
	}
	if len(tickets) == 0 {
		recErr := &apperrors.ReconciliationError{TxnRef: st.callback.TxnRef, Reason: "unresolved"}
		if c, err := s.DB.FindCase(ctx, st.callback.TxnRef); err == nil && c != nil {
			recErr.Reason = c.Reason
			recErr.CaseID = c.ID
		}
		return nil, recErr
	}
	s.advance(st, StateSettled, fmt.Sprintf("replayed bill %d", bill.ID))
	return &Result{
		State:    StateSettled,
		TxnRef:   bill.TxnRef,
		BillID:   bill.ID,
		Total:    bill.TotalAmount,
		Tickets:  tickets,
		Replayed: true,
	}, nil
}

func (s *Service) finalize(ctx context.Context, st *settlement) (*Result, error) {
	d := st.descriptor
	paidAt := s.now().UTC().Truncate(time.Second)
	bill := s.newBill(st, paidAt)

	order := db.Order{UserID: d.UserID, EventID: d.EventID}
	for _, a := range d.Assignments {
		order.Lines = append(order.Lines, db.Line{HoldID: a.HoldID, SeatID: a.SeatID, CategoryID: a.CategoryID})
	}

	tickets, err := s.DB.Finalize(ctx, bill, order, s.QR.Payload)
	var taken *db.SeatTakenError
	switch {
	case errors.Is(err, db.ErrAlreadySettled):
		if result, err := s.replay(ctx, st); result != nil || err != nil {
			return result, err
		}
		return nil, fmt.Errorf("bill for %s vanished during replay", st.callback.TxnRef)
	case errors.As(err, &taken):
		return nil, s.reconcile(ctx, st, ReasonSeatTaken, taken.Error())
	case err != nil:
		return nil, fmt.Errorf("finalize %s: %w", st.callback.TxnRef, err)
	}

	s.advance(st, StateSettled, fmt.Sprintf("bill %d booked %d tickets", bill.ID, len(tickets)))
	if s.Seats != nil {
		s.Seats.Publish(models.NewSeatStatusEvent(d.EventID, d.SeatIDs(), models.SeatStatusBooked))
	}
	result := &Result{State: StateSettled, TxnRef: bill.TxnRef, BillID: bill.ID, Total: bill.TotalAmount, Tickets: tickets}
	s.notify(st, st.event.Title, result)
	return result, nil
}

func (s *Service) notify(st *settlement, eventTitle string, result *Result) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Dispatch(models.TicketConfirmation{
		UserID:     st.descriptor.UserID,
		EventID:    st.descriptor.EventID,
		EventTitle: eventTitle,
		BillID:     result.BillID,
		TxnRef:     result.TxnRef,
		Total:      result.Total,
		Tickets:    result.Tickets,
	})
}

// resendConfirmation sends the stored tickets again for a redelivered
// callback. The event title is best effort.
func (s *Service) resendConfirmation(ctx context.Context, st *settlement, result *Result) {
	title := ""
	if event, err := s.DB.GetEvent(ctx, st.descriptor.EventID); err == nil {
		title = event.Title
	} else {
		s.Logger.Warn("SETTLEMENT", fmt.Sprintf("Event %d lookup for replayed %s failed: %v", st.descriptor.EventID, result.TxnRef, err))
	}
	s.notify(st, title, result)
}

func (s *Service) newBill(st *settlement, paidAt time.Time) *models.Bill {
	return &models.Bill{
		UserID:        st.descriptor.UserID,
		TxnRef:        st.callback.TxnRef,
		TotalAmount:   gateway.FromMinorUnits(st.callback.AmountMinor),
		Currency:      s.Currency,
		PaymentMethod: "VNPAY",
		PaymentStatus: models.BillPaid,
		GatewayTxnNo:  st.callback.TransactionNo,
		CreatedAt:     paidAt,
		PaidAt:        paidAt,
	}
}

// reconcile records that money was taken without seats to show for it. The
// remaining holds are released and the operators alerted. The returned error
// is always a ReconciliationError unless the case could not be stored.
func (s *Service) reconcile(ctx context.Context, st *settlement, reason, detail string) error {
	d := st.descriptor
	now := s.now().UTC().Truncate(time.Second)
	bill := s.newBill(st, now)

	c, err := s.DB.RecordReconciliation(ctx, bill, &models.ReconciliationCase{
		TxnRef:     st.callback.TxnRef,
		UserID:     d.UserID,
		EventID:    d.EventID,
		Amount:     bill.TotalAmount,
		Reason:     reason,
		Detail:     detail,
		Descriptor: st.callback.OrderInfo,
		Status:     models.CaseOpen,
		CreatedAt:  now,
	})
	if err != nil {
		s.Logger.LogReconciliation(st.callback.TxnRef, reason, fmt.Sprintf("Case could not be stored: %v (%s)", err, detail))
		return fmt.Errorf("record reconciliation for %s: %w", st.callback.TxnRef, err)
	}

	if _, err := s.Holds.Release(ctx, d.HoldIDs(), "reconciliation"); err != nil {
		s.Logger.Error("SETTLEMENT", fmt.Sprintf("Releasing holds of %s failed, sweeper will retry: %v", st.callback.TxnRef, err))
	}
	s.Alerter.Raise(ctx, c)
	s.advance(st, StateReleased, fmt.Sprintf("reconciliation case %d (%s)", c.ID, reason))
	return &apperrors.ReconciliationError{TxnRef: st.callback.TxnRef, Reason: reason, CaseID: c.ID}
}
