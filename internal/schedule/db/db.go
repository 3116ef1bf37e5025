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
	"ms-reservation/internal/schedule"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	return getEvent(ctx, d.Bun, id)
}

func getEvent(ctx context.Context, db bun.IDB, id int64) (*models.Event, error) {
	var event models.Event
	err := db.NewSelect().Model(&event).Where("e.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("event", id)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ConflictingEvents returns the active events of an area whose window
// conflicts with the given one under buffer. excludeEventID skips an event
// being re-checked against its neighbours.
func (d *DB) ConflictingEvents(ctx context.Context, areaID int64, window schedule.Interval, buffer time.Duration, excludeEventID int64) ([]models.Event, error) {
	return conflictingEvents(ctx, d.Bun, areaID, window, buffer, excludeEventID)
}

func conflictingEvents(ctx context.Context, db bun.IDB, areaID int64, window schedule.Interval, buffer time.Duration, excludeEventID int64) ([]models.Event, error) {
	endAfter, startBefore := window.SearchBounds(buffer)

	var candidates []models.Event
	q := db.NewSelect().
		Model(&candidates).
		Where("e.area_id = ?", areaID).
		Where("e.status IN (?)", bun.In(models.ActiveEventStatuses)).
		Where("e.end_time > ?", endAfter.UTC()).
		Where("e.start_time < ?", startBefore.UTC()).
		OrderExpr("e.start_time ASC")
	if excludeEventID != 0 {
		q = q.Where("e.id <> ?", excludeEventID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("query area %d calendar: %w", areaID, err)
	}

	conflicts := candidates[:0]
	for _, e := range candidates {
		if window.ConflictsWith(schedule.Interval{Start: e.StartTime, End: e.EndTime}, buffer) {
			conflicts = append(conflicts, e)
		}
	}
	return conflicts, nil
}

// FreeAreas lists AVAILABLE areas with no active event inside the buffered window.
func (d *DB) FreeAreas(ctx context.Context, window schedule.Interval, buffer time.Duration) ([]models.VenueArea, error) {
	endAfter, startBefore := window.SearchBounds(buffer)

	busy := d.Bun.NewSelect().
		TableExpr("events AS e").
		ColumnExpr("1").
		Where("e.area_id = va.id").
		Where("e.status IN (?)", bun.In(models.ActiveEventStatuses)).
		Where("e.end_time > ?", endAfter.UTC()).
		Where("e.start_time < ?", startBefore.UTC())

	var areas []models.VenueArea
	err := d.Bun.NewSelect().
		Model(&areas).
		Where("va.status = ?", models.AreaAvailable).
		Where("NOT EXISTS (?)", busy).
		OrderExpr("va.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("query free areas: %w", err)
	}
	return areas, nil
}

// lockArea bumps the area's version, which takes the row lock on Postgres and
// the write lock on SQLite. Everything after it in the transaction is
// serialized against other schedulers of the same area.
func lockArea(ctx context.Context, tx bun.Tx, areaID int64) (*models.VenueArea, error) {
	res, err := tx.NewUpdate().
		Model((*models.VenueArea)(nil)).
		Set("version = version + 1").
		Where("id = ?", areaID).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock area %d: %w", areaID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.NotFound("area", areaID)
	}
	var area models.VenueArea
	if err := tx.NewSelect().Model(&area).Where("va.id = ?", areaID).Scan(ctx); err != nil {
		return nil, err
	}
	return &area, nil
}

// InsertEventIfFree inserts event unless it conflicts with the area's calendar.
// When conflicts are returned nothing was written.
func (d *DB) InsertEventIfFree(ctx context.Context, event *models.Event, buffer time.Duration) ([]models.Event, error) {
	var conflicts []models.Event
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		area, err := lockArea(ctx, tx, event.AreaID)
		if err != nil {
			return err
		}
		if area.Status != models.AreaAvailable {
			return apperrors.Validation("area_id", fmt.Sprintf("area %d is %s", area.ID, area.Status))
		}

		window := schedule.Interval{Start: event.StartTime, End: event.EndTime}
		conflicts, err = conflictingEvents(ctx, tx, event.AreaID, window, buffer, 0)
		if err != nil || len(conflicts) > 0 {
			return err
		}

		_, err = tx.NewInsert().Model(event).Exec(ctx)
		return err
	})
	return conflicts, err
}

// OpenEventIfFree re-checks a DRAFT event against the rest of its area's
// calendar and moves it to OPEN when nothing conflicts.
func (d *DB) OpenEventIfFree(ctx context.Context, eventID int64, buffer time.Duration) (*models.Event, []models.Event, error) {
	var (
		event     *models.Event
		conflicts []models.Event
	)
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		event, err = getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if _, err := lockArea(ctx, tx, event.AreaID); err != nil {
			return err
		}

		window := schedule.Interval{Start: event.StartTime, End: event.EndTime}
		conflicts, err = conflictingEvents(ctx, tx, event.AreaID, window, buffer, event.ID)
		if err != nil || len(conflicts) > 0 {
			return err
		}

		res, err := tx.NewUpdate().
			Model((*models.Event)(nil)).
			Set("status = ?", models.EventOpen).
			Where("id = ?", eventID).
			Where("status = ?", models.EventDraft).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &apperrors.ConflictError{Resource: "event", ID: eventID, Reason: "not_draft", Message: "event is no longer a draft"}
		}
		event.Status = models.EventOpen
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return event, conflicts, nil
}

// SetEventStatus moves an event out of one of the from statuses.
func (d *DB) SetEventStatus(ctx context.Context, eventID int64, status string, from ...string) error {
	q := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("status = ?", status).
		Where("id = ?", eventID)
	if len(from) > 0 {
		q = q.Where("status IN (?)", bun.In(from))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("event", eventID)
	}
	return nil
}
