package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-reservation/internal/models"
)

var schemaModels = []interface{}{
	(*models.VenueArea)(nil),
	(*models.Seat)(nil),
	(*models.Event)(nil),
	(*models.CategoryTicket)(nil),
	(*models.Bill)(nil),
	(*models.Ticket)(nil),
	(*models.ReconciliationCase)(nil),
	(*models.User)(nil),
}

// schemaIndexes are plain SQL accepted by both Postgres and SQLite. The partial
// unique index on tickets is what makes a seat hold atomic: a second PENDING,
// BOOKED, CHECKED_IN or CHECKED_OUT row for the same (event, seat) fails on insert.
var schemaIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_tickets_event_seat_taken ON tickets (event_id, seat_id) WHERE status IN ('PENDING', 'BOOKED', 'CHECKED_IN', 'CHECKED_OUT')`,
	`CREATE INDEX IF NOT EXISTS ix_tickets_status_created ON tickets (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_tickets_bill ON tickets (bill_id)`,
	`CREATE INDEX IF NOT EXISTS ix_events_area_window ON events (area_id, start_time, end_time)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_category_tickets_event_name ON category_tickets (event_id, name)`,
	`CREATE INDEX IF NOT EXISTS ix_seats_area ON seats (area_id)`,
}

// CreateSchema builds the reservation tables from the bun models. Production
// databases are migrated with golang-migrate (see migrations/); this is used by
// tests and local SQLite runs.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	for _, stmt := range schemaIndexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err came from a unique constraint, for either
// lib/pq (SQLSTATE 23505) or SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
