package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/database"
	"ms-reservation/internal/models"
	ticketdb "ms-reservation/internal/tickets/db"
)

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

// SeatsByID returns the configured seats among ids, keyed by id.
func (d *DB) SeatsByID(ctx context.Context, ids []int64) (map[int64]models.Seat, error) {
	var seats []models.Seat
	err := d.Bun.NewSelect().Model(&seats).Where("s.id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seats: %w", err)
	}
	out := make(map[int64]models.Seat, len(seats))
	for _, s := range seats {
		out[s.ID] = s
	}
	return out, nil
}

// TakenSeats returns which of seatIDs already have a live ticket for the event.
func (d *DB) TakenSeats(ctx context.Context, eventID int64, seatIDs []int64) (map[int64]bool, error) {
	return takenSeats(ctx, d.Bun, eventID, seatIDs)
}

func takenSeats(ctx context.Context, db bun.IDB, eventID int64, seatIDs []int64) (map[int64]bool, error) {
	var taken []int64
	err := db.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("seat_id").
		Where("t.event_id = ?", eventID).
		Where("t.seat_id IN (?)", bun.In(seatIDs)).
		Where("t.status IN (?)", bun.In(models.TakenTicketStatuses)).
		Scan(ctx, &taken)
	if err != nil {
		return nil, fmt.Errorf("check taken seats of event %d: %w", eventID, err)
	}
	out := make(map[int64]bool, len(taken))
	for _, id := range taken {
		out[id] = true
	}
	return out, nil
}

// SoldByCategory counts live tickets per category of an event.
func (d *DB) SoldByCategory(ctx context.Context, eventID int64) (map[int64]int, error) {
	return soldByCategory(ctx, d.Bun, eventID)
}

func soldByCategory(ctx context.Context, db bun.IDB, eventID int64) (map[int64]int, error) {
	var rows []struct {
		CategoryID int64 `bun:"category_id"`
		Sold       int   `bun:"sold"`
	}
	err := db.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("t.category_id AS category_id").
		ColumnExpr("COUNT(*) AS sold").
		Where("t.event_id = ?", eventID).
		Where("t.status IN (?)", bun.In(models.TakenTicketStatuses)).
		GroupExpr("t.category_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count sold tickets of event %d: %w", eventID, err)
	}
	out := make(map[int64]int, len(rows))
	for _, r := range rows {
		out[r.CategoryID] = r.Sold
	}
	return out, nil
}

// CreateHolds inserts the PENDING tickets in one transaction. If any seat is
// taken by a concurrent buyer nothing is written and a ConflictError names it.
func (d *DB) CreateHolds(ctx context.Context, holds []*models.Ticket) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return insertTickets(ctx, tx, holds)
	})
}

// CreateFreeBooking books zero-priced tickets directly under a PAID bill and
// issues their QR codes.
func (d *DB) CreateFreeBooking(ctx context.Context, bill *models.Bill, tickets []*models.Ticket, payload func(int64) string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(bill).Exec(ctx); err != nil {
			return fmt.Errorf("insert bill %s: %w", bill.TxnRef, err)
		}
		for _, t := range tickets {
			t.BillID = &bill.ID
		}
		if err := insertTickets(ctx, tx, tickets); err != nil {
			return err
		}
		ids := make([]int64, 0, len(tickets))
		for _, t := range tickets {
			ids = append(ids, t.ID)
		}
		return ticketdb.IssueQRCodes(ctx, tx, ids, payload)
	})
}

func insertTickets(ctx context.Context, tx bun.Tx, tickets []*models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	eventID := tickets[0].EventID
	seatIDs := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		seatIDs = append(seatIDs, t.SeatIDValue())
	}

	taken, err := takenSeats(ctx, tx, eventID, seatIDs)
	if err != nil {
		return err
	}
	for _, id := range seatIDs {
		if taken[id] {
			return apperrors.SeatTaken(id)
		}
	}

	if err := checkQuota(ctx, tx, eventID, tickets); err != nil {
		return err
	}

	for _, t := range tickets {
		if _, err := tx.NewInsert().Model(t).Exec(ctx); err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.SeatTaken(t.SeatIDValue())
			}
			return fmt.Errorf("insert hold for seat %d: %w", t.SeatIDValue(), err)
		}
	}
	return nil
}

// checkQuota recounts the categories' live tickets inside tx. On Postgres the
// category rows are locked in id order first, so orders for the same category
// are counted one after another.
func checkQuota(ctx context.Context, tx bun.Tx, eventID int64, tickets []*models.Ticket) error {
	requested := make(map[int64]int)
	firstSeat := make(map[int64]int64)
	ids := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		if requested[t.CategoryID] == 0 {
			ids = append(ids, t.CategoryID)
			firstSeat[t.CategoryID] = t.SeatIDValue()
		}
		requested[t.CategoryID]++
	}

	var categories []models.CategoryTicket
	q := tx.NewSelect().Model(&categories).Where("c.id IN (?)", bun.In(ids)).OrderExpr("c.id ASC")
	if tx.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return fmt.Errorf("lock categories of event %d: %w", eventID, err)
	}

	sold, err := soldByCategory(ctx, tx, eventID)
	if err != nil {
		return err
	}
	for _, c := range categories {
		if c.MaxQuantity > 0 && sold[c.ID]+requested[c.ID] > c.MaxQuantity {
			return &apperrors.ValidationError{
				Field:   "category",
				SeatID:  firstSeat[c.ID],
				Reason:  apperrors.ReasonQuotaExceeded,
				Message: fmt.Sprintf("category %s has %d of %d left", c.Name, max(c.MaxQuantity-sold[c.ID], 0), c.MaxQuantity),
			}
		}
	}
	return nil
}

// ReleaseHolds deletes the tickets among ids that are still PENDING and
// returns what was deleted. Booked or already released ids are ignored. A
// non-empty userID restricts the release to that user's holds.
func (d *DB) ReleaseHolds(ctx context.Context, ids []int64, userID string) ([]models.Ticket, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return d.deletePending(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("t.id IN (?)", bun.In(ids))
		if userID != "" {
			q = q.Where("t.user_id = ?", userID)
		}
		return q
	})
}

// ReleaseExpired deletes PENDING tickets created before cutoff.
func (d *DB) ReleaseExpired(ctx context.Context, cutoff time.Time) ([]models.Ticket, error) {
	return d.deletePending(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("t.created_at < ?", cutoff.UTC())
	})
}

func (d *DB) deletePending(ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]models.Ticket, error) {
	var released []models.Ticket
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var pending []models.Ticket
		q := tx.NewSelect().Model(&pending).Where("t.status = ?", models.TicketPending)
		if tx.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := filter(q).Scan(ctx); err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(pending))
		for _, t := range pending {
			ids = append(ids, t.ID)
		}
		_, err := tx.NewDelete().
			Model((*models.Ticket)(nil)).
			Where("id IN (?)", bun.In(ids)).
			Where("status = ?", models.TicketPending).
			Exec(ctx)
		if err != nil {
			return err
		}
		released = pending
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("release holds: %w", err)
	}
	return released, nil
}

func (d *DB) ConfirmedTickets(ctx context.Context, ids []int64) ([]models.ConfirmedTicket, error) {
	return ticketdb.ConfirmedTickets(ctx, d.Bun, ids)
}
