package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/database"
	"ms-reservation/internal/models"
	ticketdb "ms-reservation/internal/tickets/db"
)

// ErrAlreadySettled means a bill with the transaction reference exists. The
// finalizing transaction was rolled back and the caller should replay.
var ErrAlreadySettled = errors.New("transaction already settled")

// SeatTakenError aborts finalization when a missing hold cannot be re-created
// because someone else owns the seat now.
type SeatTakenError struct {
	SeatID int64
}

func (e *SeatTakenError) Error() string {
	return fmt.Sprintf("seat %d was taken before settlement", e.SeatID)
}

// Line is one seat of a settled order.
type Line struct {
	HoldID     int64
	SeatID     int64
	CategoryID int64
}

type Order struct {
	UserID  string
	EventID int64
	Lines   []Line
}

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().Model(&event).Where("e.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("event", id)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Categories returns the categories with the given ids, keyed by id, whatever
// their status.
func (d *DB) Categories(ctx context.Context, ids []int64) (map[int64]models.CategoryTicket, error) {
	var categories []models.CategoryTicket
	if err := d.Bun.NewSelect().Model(&categories).Where("c.id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	out := make(map[int64]models.CategoryTicket, len(categories))
	for _, c := range categories {
		out[c.ID] = c
	}
	return out, nil
}

// FindSettlement returns the bill recorded for txnRef and its tickets, or nil
// when the transaction was never settled.
func (d *DB) FindSettlement(ctx context.Context, txnRef string) (*models.Bill, []models.ConfirmedTicket, error) {
	return findSettlement(ctx, d.Bun, txnRef)
}

func findSettlement(ctx context.Context, db bun.IDB, txnRef string) (*models.Bill, []models.ConfirmedTicket, error) {
	var bill models.Bill
	err := db.NewSelect().Model(&bill).Where("b.txn_ref = ?", txnRef).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load bill %s: %w", txnRef, err)
	}

	var ids []int64
	err = db.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("id").
		Where("t.bill_id = ?", bill.ID).
		OrderExpr("t.id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load tickets of bill %d: %w", bill.ID, err)
	}
	tickets, err := ticketdb.ConfirmedTickets(ctx, db, ids)
	if err != nil {
		return nil, nil, err
	}
	return &bill, tickets, nil
}

// Finalize books the order under a new PAID bill in one transaction and
// issues the QR codes. Holds that are still PENDING are flipped to BOOKED;
// holds that disappeared are re-created as BOOKED unless the seat was taken
// meanwhile, in which case nothing is written and a SeatTakenError returned.
func (d *DB) Finalize(ctx context.Context, bill *models.Bill, order Order, payload func(int64) string) ([]models.ConfirmedTicket, error) {
	var confirmed []models.ConfirmedTicket
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*models.Bill)(nil)).Where("txn_ref = ?", bill.TxnRef).Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadySettled
		}
		if _, err := tx.NewInsert().Model(bill).Exec(ctx); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAlreadySettled
			}
			return fmt.Errorf("insert bill %s: %w", bill.TxnRef, err)
		}

		ids := make([]int64, 0, len(order.Lines))
		for _, line := range order.Lines {
			id, err := bookLine(ctx, tx, bill, order, line)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		if err := ticketdb.IssueQRCodes(ctx, tx, ids, payload); err != nil {
			return err
		}
		confirmed, err = ticketdb.ConfirmedTickets(ctx, tx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

func bookLine(ctx context.Context, tx bun.Tx, bill *models.Bill, order Order, line Line) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketBooked).
		Set("bill_id = ?", bill.ID).
		Where("id = ?", line.HoldID).
		Where("status = ?", models.TicketPending).
		Where("event_id = ?", order.EventID).
		Where("user_id = ?", order.UserID).
		Where("seat_id = ?", line.SeatID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("book hold %d: %w", line.HoldID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return line.HoldID, nil
	}

	// The hold expired or was released before the callback arrived.
	taken, err := tx.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", order.EventID).
		Where("seat_id = ?", line.SeatID).
		Where("status IN (?)", bun.In(models.TakenTicketStatuses)).
		Exists(ctx)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, &SeatTakenError{SeatID: line.SeatID}
	}

	seatID := line.SeatID
	ticket := &models.Ticket{
		EventID:    order.EventID,
		UserID:     order.UserID,
		CategoryID: line.CategoryID,
		SeatID:     &seatID,
		BillID:     &bill.ID,
		Status:     models.TicketBooked,
		CreatedAt:  bill.PaidAt,
	}
	if _, err := tx.NewInsert().Model(ticket).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return 0, &SeatTakenError{SeatID: line.SeatID}
		}
		return 0, fmt.Errorf("re-create ticket for seat %d: %w", line.SeatID, err)
	}
	return ticket.ID, nil
}

// RecordReconciliation stores the money received for txnRef together with an
// OPEN case. Both writes are idempotent on the transaction reference; the
// stored case is returned.
func (d *DB) RecordReconciliation(ctx context.Context, bill *models.Bill, c *models.ReconciliationCase) (*models.ReconciliationCase, error) {
	stored := new(models.ReconciliationCase)
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if bill != nil {
			if err := tx.NewSelect().Model(bill).Where("b.txn_ref = ?", bill.TxnRef).Limit(1).Scan(ctx); errors.Is(err, sql.ErrNoRows) {
				if _, err := tx.NewInsert().Model(bill).Exec(ctx); err != nil {
					return fmt.Errorf("insert bill %s: %w", bill.TxnRef, err)
				}
			} else if err != nil {
				return err
			}
			c.BillID = &bill.ID
		}

		err := tx.NewSelect().Model(stored).Where("rc.txn_ref = ?", c.TxnRef).Limit(1).Scan(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if _, err := tx.NewInsert().Model(c).Exec(ctx); err != nil {
			return fmt.Errorf("insert reconciliation case %s: %w", c.TxnRef, err)
		}
		*stored = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (d *DB) FindCase(ctx context.Context, txnRef string) (*models.ReconciliationCase, error) {
	var c models.ReconciliationCase
	err := d.Bun.NewSelect().Model(&c).Where("rc.txn_ref = ?", txnRef).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
