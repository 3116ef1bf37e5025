package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/catalog"
	"ms-reservation/internal/config"
	"ms-reservation/internal/descriptor"
	"ms-reservation/internal/gateway"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/metrics"
	"ms-reservation/internal/models"
	"ms-reservation/internal/utils"
)

type DBLayer interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	SeatsByID(ctx context.Context, ids []int64) (map[int64]models.Seat, error)
	TakenSeats(ctx context.Context, eventID int64, seatIDs []int64) (map[int64]bool, error)
	SoldByCategory(ctx context.Context, eventID int64) (map[int64]int, error)
	CreateHolds(ctx context.Context, holds []*models.Ticket) error
	CreateFreeBooking(ctx context.Context, bill *models.Bill, tickets []*models.Ticket, payload func(int64) string) error
	ReleaseHolds(ctx context.Context, ids []int64, userID string) ([]models.Ticket, error)
	ReleaseExpired(ctx context.Context, cutoff time.Time) ([]models.Ticket, error)
	ConfirmedTickets(ctx context.Context, ids []int64) ([]models.ConfirmedTicket, error)
}

type CategoryProvider interface {
	Table(ctx context.Context, eventID int64) (*catalog.Table, error)
}

type DescriptorSigner interface {
	Sign(d descriptor.Descriptor) (string, error)
}

type PaymentGateway interface {
	BuildPaymentURL(req gateway.PaymentRequest) (string, error)
}

type HoldMarker interface {
	Mark(ctx context.Context, eventID int64, ticketIDs []int64, ttl time.Duration) error
	Clear(ctx context.Context, ticketIDs []int64) error
}

type SeatFeed interface {
	Publish(evt models.SeatStatusEvent)
}

type Notifier interface {
	Dispatch(c models.TicketConfirmation)
}

type QRPayloader interface {
	Payload(ticketID int64) string
}

// Service places seat holds and releases them. Markers, Seats and Notifier
// are optional.
type Service struct {
	DB         DBLayer
	Categories CategoryProvider
	Signer     DescriptorSigner
	Gateway    PaymentGateway
	QR         QRPayloader
	Markers    HoldMarker
	Seats      SeatFeed
	Notifier   Notifier
	Logger     *logger.Logger

	MaxSeats int
	HoldTTL  time.Duration
	Currency string

	now func() time.Time
}

func NewService(db DBLayer, categories CategoryProvider, signer DescriptorSigner, gw PaymentGateway, qr QRPayloader, cfg *config.Config, log *logger.Logger) *Service {
	return &Service{
		DB:         db,
		Categories: categories,
		Signer:     signer,
		Gateway:    gw,
		QR:         qr,
		Logger:     log,
		MaxSeats:   cfg.Reservation.MaxSeatsPerOrder,
		HoldTTL:    cfg.Reservation.HoldTTL,
		Currency:   cfg.Gateway.CurrCode,
		now:        time.Now,
	}
}

type HoldRequest struct {
	EventID  int64   `json:"event_id"`
	UserID   string  `json:"user_id"`
	SeatIDs  []int64 `json:"seat_ids"`
	ClientIP string  `json:"-"`
}

type HeldSeat struct {
	TicketID   int64           `json:"ticket_id"`
	SeatID     int64           `json:"seat_id"`
	SeatCode   string          `json:"seat_code"`
	CategoryID int64           `json:"category_id"`
	Category   string          `json:"category"`
	Price      decimal.Decimal `json:"price"`
}

// Hold is the outcome of a successful hold request. Zero-priced orders come
// back already booked with no payment URL.
type Hold struct {
	EventID    int64           `json:"event_id"`
	HoldIDs    []int64         `json:"hold_ids"`
	Seats      []HeldSeat      `json:"seats"`
	Total      decimal.Decimal `json:"total"`
	TxnRef     string          `json:"txn_ref"`
	Descriptor string          `json:"descriptor,omitempty"`
	PaymentURL string          `json:"payment_url,omitempty"`
	ExpiresAt  time.Time       `json:"expires_at,omitempty"`
	Booked     bool            `json:"booked"`
	BillID     int64           `json:"bill_id,omitempty"`
}

func (s *Service) validate(req HoldRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return apperrors.Validation("user_id", "user_id is required")
	}
	if req.EventID <= 0 {
		return apperrors.Validation("event_id", "event_id is required")
	}
	if len(req.SeatIDs) == 0 {
		return apperrors.Validation("seat_ids", "at least one seat is required")
	}
	if s.MaxSeats > 0 && len(req.SeatIDs) > s.MaxSeats {
		return apperrors.Validation("seat_ids", fmt.Sprintf("at most %d seats per order", s.MaxSeats))
	}
	seen := make(map[int64]bool, len(req.SeatIDs))
	for _, id := range req.SeatIDs {
		if id <= 0 {
			return apperrors.Validation("seat_ids", fmt.Sprintf("invalid seat id %d", id))
		}
		if seen[id] {
			return apperrors.SeatInvalid(id, "duplicate", "seat requested twice")
		}
		seen[id] = true
	}
	return nil
}

// CreateHold reserves the seats as PENDING tickets and returns the signed
// payment redirect for them.
func (s *Service) CreateHold(ctx context.Context, req HoldRequest) (*Hold, error) {
	hold, err := s.createHold(ctx, req)
	switch {
	case err == nil:
		metrics.TrackHold(metrics.OutcomeCreated, len(req.SeatIDs))
	case errors.Is(err, apperrors.ErrConflict):
		metrics.TrackHold(metrics.OutcomeConflict, len(req.SeatIDs))
		s.Logger.LogHold("CONFLICT", req.EventID, req.UserID, err.Error())
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrNotFound):
		metrics.TrackHold(metrics.OutcomeRejected, len(req.SeatIDs))
		s.Logger.LogHold("REJECTED", req.EventID, req.UserID, err.Error())
	default:
		metrics.TrackHold(metrics.OutcomeError, len(req.SeatIDs))
		s.Logger.Error("HOLD", fmt.Sprintf("Hold for event %d by %s failed: %v", req.EventID, req.UserID, err))
	}
	return hold, err
}

func (s *Service) createHold(ctx context.Context, req HoldRequest) (*Hold, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	event, err := s.DB.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Second)
	if event.Status != models.EventOpen {
		return nil, apperrors.Validation("event_id", fmt.Sprintf("event %d is %s, not open for sale", event.ID, event.Status))
	}
	if !event.StartTime.After(now) {
		return nil, apperrors.Validation("event_id", fmt.Sprintf("event %d has already started", event.ID))
	}

	priced, total, err := s.Resolve(ctx, event, req.SeatIDs)
	if err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, event.ID, priced); err != nil {
		return nil, err
	}

	txnRef := utils.GenerateTxnRef(req.UserID, event.ID, now)
	if total.IsZero() {
		return s.bookFree(ctx, req, event, priced, txnRef, now)
	}

	holds := newTickets(req.UserID, event.ID, priced, models.TicketPending, now)
	if err := s.DB.CreateHolds(ctx, holds); err != nil {
		return nil, err
	}
	hold := newHold(event.ID, holds, priced, total, txnRef)
	hold.ExpiresAt = now.Add(s.HoldTTL)

	assignments := make([]descriptor.Assignment, 0, len(holds))
	for i, t := range holds {
		assignments = append(assignments, descriptor.Assignment{SeatID: priced[i].Seat.ID, CategoryID: priced[i].Category.ID, HoldID: t.ID})
	}
	token, err := s.Signer.Sign(descriptor.Descriptor{
		UserID:      req.UserID,
		EventID:     event.ID,
		TxnRef:      txnRef,
		Assignments: assignments,
	})
	if err != nil {
		s.compensate(ctx, hold, "descriptor", err)
		return nil, fmt.Errorf("sign order descriptor: %w", err)
	}
	amount, err := gateway.MinorUnits(total)
	if err != nil {
		s.compensate(ctx, hold, "amount", err)
		return nil, apperrors.Validation("total", err.Error())
	}
	paymentURL, err := s.Gateway.BuildPaymentURL(gateway.PaymentRequest{
		AmountMinor: amount,
		OrderInfo:   token,
		TxnRef:      txnRef,
		ClientIP:    req.ClientIP,
		CreatedAt:   now,
	})
	if err != nil {
		s.compensate(ctx, hold, "gateway", err)
		return nil, fmt.Errorf("build payment url: %w", err)
	}
	hold.Descriptor = token
	hold.PaymentURL = paymentURL

	if s.Markers != nil {
		if err := s.Markers.Mark(ctx, event.ID, hold.HoldIDs, s.HoldTTL); err != nil {
			s.Logger.Warn("HOLD", fmt.Sprintf("Expiry markers for %v not set, sweeper will release them: %v", hold.HoldIDs, err))
		}
	}
	s.publishSeats(event.ID, priced, models.SeatStatusHeld)
	s.Logger.LogHold("CREATED", event.ID, req.UserID, fmt.Sprintf("Held seats %v as %v for %s, total %s", req.SeatIDs, hold.HoldIDs, txnRef, total.StringFixed(2)))
	return hold, nil
}

// compensate undoes a committed hold when the order cannot be handed to the
// gateway.
func (s *Service) compensate(ctx context.Context, hold *Hold, stage string, cause error) {
	s.Logger.Error("HOLD", fmt.Sprintf("Releasing holds %v after %s failure: %v", hold.HoldIDs, stage, cause))
	if _, err := s.Release(ctx, hold.HoldIDs, "compensation"); err != nil {
		s.Logger.Error("HOLD", fmt.Sprintf("Compensating release of %v failed, sweeper will retry: %v", hold.HoldIDs, err))
	}
}

func (s *Service) bookFree(ctx context.Context, req HoldRequest, event *models.Event, priced []PricedSeat, txnRef string, now time.Time) (*Hold, error) {
	bill := &models.Bill{
		UserID:        req.UserID,
		TxnRef:        txnRef,
		TotalAmount:   decimal.Zero,
		Currency:      s.Currency,
		PaymentMethod: "FREE",
		PaymentStatus: models.BillPaid,
		CreatedAt:     now,
		PaidAt:        now,
	}
	tickets := newTickets(req.UserID, event.ID, priced, models.TicketBooked, now)
	if err := s.DB.CreateFreeBooking(ctx, bill, tickets, s.QR.Payload); err != nil {
		return nil, err
	}

	hold := newHold(event.ID, tickets, priced, decimal.Zero, txnRef)
	hold.Booked = true
	hold.BillID = bill.ID
	s.publishSeats(event.ID, priced, models.SeatStatusBooked)
	s.Logger.LogHold("BOOKED_FREE", event.ID, req.UserID, fmt.Sprintf("Booked free seats %v as %v", req.SeatIDs, hold.HoldIDs))

	if s.Notifier != nil {
		confirmed, err := s.DB.ConfirmedTickets(ctx, hold.HoldIDs)
		if err != nil {
			s.Logger.Error("NOTIFY", (&apperrors.NotificationError{TicketIDs: hold.HoldIDs, Err: err}).Error())
			return hold, nil
		}
		s.Notifier.Dispatch(models.TicketConfirmation{
			UserID:     req.UserID,
			EventID:    event.ID,
			EventTitle: event.Title,
			BillID:     bill.ID,
			TxnRef:     txnRef,
			Total:      decimal.Zero,
			Tickets:    confirmed,
		})
	}
	return hold, nil
}

// Release deletes the holds that are still PENDING. Ids that were already
// released or booked are skipped, so repeating a release is harmless.
func (s *Service) Release(ctx context.Context, holdIDs []int64, trigger string) (int, error) {
	released, err := s.DB.ReleaseHolds(ctx, holdIDs, "")
	if err != nil {
		return 0, err
	}
	s.afterRelease(ctx, released, trigger)
	return len(released), nil
}

// CancelHold releases a user's own holds.
func (s *Service) CancelHold(ctx context.Context, userID string, holdIDs []int64) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, apperrors.Validation("user_id", "user_id is required")
	}
	if len(holdIDs) == 0 {
		return 0, apperrors.Validation("hold_ids", "at least one hold id is required")
	}
	released, err := s.DB.ReleaseHolds(ctx, holdIDs, userID)
	if err != nil {
		return 0, err
	}
	s.afterRelease(ctx, released, "request")
	return len(released), nil
}

// ReleaseExpired releases every hold older than the hold TTL.
func (s *Service) ReleaseExpired(ctx context.Context) (int, error) {
	released, err := s.DB.ReleaseExpired(ctx, s.now().Add(-s.HoldTTL))
	if err != nil {
		return 0, err
	}
	s.afterRelease(ctx, released, "expiry")
	return len(released), nil
}

func (s *Service) afterRelease(ctx context.Context, released []models.Ticket, trigger string) {
	if len(released) == 0 {
		return
	}
	metrics.TrackRelease(trigger, int64(len(released)))

	ids := make([]int64, 0, len(released))
	byEvent := make(map[int64][]int64)
	for _, t := range released {
		ids = append(ids, t.ID)
		if t.SeatID != nil {
			byEvent[t.EventID] = append(byEvent[t.EventID], *t.SeatID)
		}
	}
	if s.Markers != nil {
		if err := s.Markers.Clear(ctx, ids); err != nil {
			s.Logger.Warn("HOLD", fmt.Sprintf("Clearing expiry markers for %v failed: %v", ids, err))
		}
	}
	for eventID, seatIDs := range byEvent {
		if s.Seats != nil {
			s.Seats.Publish(models.NewSeatStatusEvent(eventID, seatIDs, models.SeatStatusAvailable))
		}
		s.Logger.LogHold("RELEASED", eventID, released[0].UserID, fmt.Sprintf("Released %d holds (%s), seats %v", len(seatIDs), trigger, seatIDs))
	}
}

func (s *Service) publishSeats(eventID int64, priced []PricedSeat, status string) {
	if s.Seats == nil {
		return
	}
	seatIDs := make([]int64, 0, len(priced))
	for _, p := range priced {
		seatIDs = append(seatIDs, p.Seat.ID)
	}
	s.Seats.Publish(models.NewSeatStatusEvent(eventID, seatIDs, status))
}

func newTickets(userID string, eventID int64, priced []PricedSeat, status string, now time.Time) []*models.Ticket {
	tickets := make([]*models.Ticket, 0, len(priced))
	for _, p := range priced {
		seatID := p.Seat.ID
		tickets = append(tickets, &models.Ticket{
			EventID:    eventID,
			UserID:     userID,
			CategoryID: p.Category.ID,
			SeatID:     &seatID,
			Status:     status,
			CreatedAt:  now,
		})
	}
	return tickets
}

func newHold(eventID int64, tickets []*models.Ticket, priced []PricedSeat, total decimal.Decimal, txnRef string) *Hold {
	hold := &Hold{EventID: eventID, Total: total, TxnRef: txnRef}
	for i, t := range tickets {
		hold.HoldIDs = append(hold.HoldIDs, t.ID)
		hold.Seats = append(hold.Seats, HeldSeat{
			TicketID:   t.ID,
			SeatID:     priced[i].Seat.ID,
			SeatCode:   priced[i].Seat.SeatCode,
			CategoryID: priced[i].Category.ID,
			Category:   priced[i].Category.Name,
			Price:      priced[i].Category.Price,
		})
	}
	return hold
}
