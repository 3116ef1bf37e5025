package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/tickets/qr"
)

type DBLayer interface {
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	ListUserTickets(ctx context.Context, userID string) ([]models.Ticket, error)
	CheckIn(ctx context.Context, id int64, at time.Time) error
	CheckOut(ctx context.Context, id int64, at time.Time) error
}

type TicketService struct {
	DB     DBLayer
	QR     *qr.Generator
	Logger *logger.Logger
	now    func() time.Time
}

func NewTicketService(db DBLayer, gen *qr.Generator, log *logger.Logger) *TicketService {
	return &TicketService{DB: db, QR: gen, Logger: log, now: time.Now}
}

// GetTicket returns a ticket owned by userID. An empty userID skips the
// ownership check; someone else's ticket reads as not found.
func (s *TicketService) GetTicket(ctx context.Context, ticketID int64, userID string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if userID != "" && ticket.UserID != userID {
		return nil, apperrors.NotFound("ticket", ticketID)
	}
	return ticket, nil
}

func (s *TicketService) ListUserTickets(ctx context.Context, userID string) ([]models.Ticket, error) {
	if userID == "" {
		return nil, apperrors.Validation("user_id", "user_id is required")
	}
	tickets, err := s.DB.ListUserTickets(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}

// QRImage renders the stored QR of a settled ticket.
func (s *TicketService) QRImage(ctx context.Context, ticketID int64, userID string) ([]byte, error) {
	ticket, err := s.GetTicket(ctx, ticketID, userID)
	if err != nil {
		return nil, err
	}
	if ticket.QRCode == "" {
		return nil, &apperrors.ConflictError{Resource: "ticket", ID: ticketID, Reason: "no_qr", Message: "ticket has not been settled"}
	}
	return s.QR.PNG(ticket.QRCode)
}

// CheckIn admits the holder of a scanned QR payload.
func (s *TicketService) CheckIn(ctx context.Context, payload string) (*models.Ticket, error) {
	return s.scan(ctx, payload, "CHECKIN", s.DB.CheckIn)
}

// CheckOut records the holder leaving the venue.
func (s *TicketService) CheckOut(ctx context.Context, payload string) (*models.Ticket, error) {
	return s.scan(ctx, payload, "CHECKOUT", s.DB.CheckOut)
}

func (s *TicketService) scan(ctx context.Context, payload, action string, apply func(context.Context, int64, time.Time) error) (*models.Ticket, error) {
	ticketID, err := s.QR.Verify(payload)
	if err != nil {
		s.Logger.LogSecurity("QR_REJECTED", fmt.Sprintf("%s with invalid payload", action))
		return nil, &apperrors.AuthenticityError{Source: "qr", Reason: err.Error()}
	}

	if err := apply(ctx, ticketID, s.now()); err != nil {
		var conflict *apperrors.ConflictError
		if errors.As(err, &conflict) {
			s.Logger.Warn("TICKET", fmt.Sprintf("%s refused for ticket %d: %s", action, ticketID, conflict.Reason))
		}
		return nil, err
	}

	s.Logger.Info("TICKET", fmt.Sprintf("%s ticket %d", action, ticketID))
	return s.DB.GetTicket(ctx, ticketID)
}
