package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-reservation/internal/analytics"
	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/models"
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

func (d *DB) Categories(ctx context.Context, eventID int64) ([]models.CategoryTicket, error) {
	var categories []models.CategoryTicket
	err := d.Bun.NewSelect().
		Model(&categories).
		Where("c.event_id = ?", eventID).
		OrderExpr("c.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories of event %d: %w", eventID, err)
	}
	return categories, nil
}

// TicketRows returns one row per ticket of the event that still occupies a
// seat, with the payment time of its bill when it has one.
func (d *DB) TicketRows(ctx context.Context, eventID int64) ([]analytics.TicketRow, error) {
	var rows []analytics.TicketRow
	err := d.Bun.NewSelect().
		TableExpr("tickets AS t").
		ColumnExpr("t.category_id, t.status").
		ColumnExpr("b.paid_at").
		Join("LEFT JOIN bills AS b ON b.id = t.bill_id").
		Where("t.event_id = ?", eventID).
		Where("t.status IN (?)", bun.In(models.TakenTicketStatuses)).
		OrderExpr("t.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("load tickets of event %d: %w", eventID, err)
	}
	return rows, nil
}
