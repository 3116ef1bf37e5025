// Package dbtest opens an in-memory SQLite database with the reservation schema
// for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-reservation/internal/database"
	"ms-reservation/internal/models"
)

// New returns a bun.DB backed by a private in-memory SQLite database. The pool is
// pinned to one connection so every query sees the same database; concurrent
// callers queue on the pool, which serializes their transactions.
func New(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := database.CreateSchema(context.Background(), db); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Fixture is the canonical venue used across tests: area 2 with VIP seat 12 and
// STANDARD seat 13, event 5 priced VIP=200 and STANDARD=100.
type Fixture struct {
	Area        models.VenueArea
	OtherArea   models.VenueArea
	Event       models.Event
	VIPSeat     models.Seat
	StdSeat     models.Seat
	ForeignSeat models.Seat
	VIP         models.CategoryTicket
	Standard    models.CategoryTicket
}

func Seed(t *testing.T, db *bun.DB) Fixture {
	t.Helper()
	ctx := context.Background()

	f := Fixture{
		Area:      models.VenueArea{ID: 2, VenueID: 1, Name: "Main Hall", Capacity: 100, Status: models.AreaAvailable},
		OtherArea: models.VenueArea{ID: 3, VenueID: 1, Name: "Side Hall", Capacity: 50, Status: models.AreaAvailable},
		Event: models.Event{
			ID:        5,
			AreaID:    2,
			Title:     "Spring Concert",
			StartTime: time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second),
			EndTime:   time.Now().UTC().Add(75 * time.Hour).Truncate(time.Second),
			Status:    models.EventOpen,
			MaxSeats:  100,
			CreatedAt: time.Now().UTC(),
		},
		VIPSeat:     models.Seat{ID: 12, AreaID: 2, SeatCode: "A12", RowNo: "A", ColumnNo: 12, Status: models.SeatAvailable, SeatType: "VIP"},
		StdSeat:     models.Seat{ID: 13, AreaID: 2, SeatCode: "B13", RowNo: "B", ColumnNo: 13, Status: models.SeatAvailable, SeatType: "STANDARD"},
		ForeignSeat: models.Seat{ID: 40, AreaID: 3, SeatCode: "S40", RowNo: "S", ColumnNo: 40, Status: models.SeatAvailable, SeatType: "VIP"},
		VIP:         models.CategoryTicket{ID: 1, EventID: 5, Name: "VIP", Price: decimal.NewFromInt(200), MaxQuantity: 10, Status: models.CategoryActive},
		Standard:    models.CategoryTicket{ID: 2, EventID: 5, Name: "STANDARD", Price: decimal.NewFromInt(100), MaxQuantity: 50, Status: models.CategoryActive},
	}

	must := func(_ sql.Result, err error) {
		if err != nil {
			t.Fatalf("Failed to seed fixture: %v", err)
		}
	}
	areas := []models.VenueArea{f.Area, f.OtherArea}
	must(db.NewInsert().Model(&areas).Exec(ctx))
	must(db.NewInsert().Model(&f.Event).Exec(ctx))
	seats := []models.Seat{f.VIPSeat, f.StdSeat, f.ForeignSeat}
	must(db.NewInsert().Model(&seats).Exec(ctx))
	cats := []models.CategoryTicket{f.VIP, f.Standard}
	must(db.NewInsert().Model(&cats).Exec(ctx))
	return f
}
