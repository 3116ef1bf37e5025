package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().Model(&ticket).Where("t.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("ticket", id)
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) ListUserTickets(ctx context.Context, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("t.user_id = ?", userID).
		Where("t.status <> ?", models.TicketPending).
		OrderExpr("t.created_at DESC, t.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickets of %s: %w", userID, err)
	}
	return tickets, nil
}

func (d *DB) CheckIn(ctx context.Context, id int64, at time.Time) error {
	return d.transition(ctx, id, models.TicketBooked, models.TicketCheckedIn, "checkin_time", at)
}

func (d *DB) CheckOut(ctx context.Context, id int64, at time.Time) error {
	return d.transition(ctx, id, models.TicketCheckedIn, models.TicketCheckedOut, "checkout_time", at)
}

// transition moves a ticket from one status to the next. A ticket in any
// other status is a ConflictError naming the status it is in.
func (d *DB) transition(ctx context.Context, id int64, from, to, stampColumn string, at time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", to).
		Set("? = ?", bun.Ident(stampColumn), at.UTC()).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("move ticket %d to %s: %w", id, to, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	current, err := d.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	return &apperrors.ConflictError{
		Resource: "ticket",
		ID:       id,
		Reason:   "status_" + current.Status,
		Message:  fmt.Sprintf("ticket is %s, expected %s", current.Status, from),
	}
}

// IssueQRCodes stores payload(id) on every ticket that has no QR yet. Tickets
// that already carry one keep it.
func IssueQRCodes(ctx context.Context, db bun.IDB, ticketIDs []int64, payload func(int64) string) error {
	for _, id := range ticketIDs {
		_, err := db.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("qr_code = ?", payload(id)).
			Where("id = ?", id).
			Where("qr_code IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("issue qr for ticket %d: %w", id, err)
		}
	}
	return nil
}

// ConfirmedTickets loads the notification view of the given tickets.
func ConfirmedTickets(ctx context.Context, db bun.IDB, ticketIDs []int64) ([]models.ConfirmedTicket, error) {
	if len(ticketIDs) == 0 {
		return nil, nil
	}
	var rows []models.ConfirmedTicket
	err := db.NewSelect().
		TableExpr("tickets AS t").
		ColumnExpr("t.id AS ticket_id").
		ColumnExpr("COALESCE(t.seat_id, 0) AS seat_id").
		ColumnExpr("COALESCE(s.seat_code, '') AS seat_code").
		ColumnExpr("c.name AS category").
		ColumnExpr("c.price AS price").
		ColumnExpr("COALESCE(t.qr_code, '') AS qr_payload").
		Join("LEFT JOIN seats AS s ON s.id = t.seat_id").
		Join("JOIN category_tickets AS c ON c.id = t.category_id").
		Where("t.id IN (?)", bun.In(ticketIDs)).
		OrderExpr("t.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("load confirmed tickets: %w", err)
	}
	return rows, nil
}
