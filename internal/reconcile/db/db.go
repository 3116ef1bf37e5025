package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ListCases returns cases newest first. An empty status lists all of them.
func (d *DB) ListCases(ctx context.Context, status string) ([]models.ReconciliationCase, error) {
	var cases []models.ReconciliationCase
	q := d.Bun.NewSelect().Model(&cases).OrderExpr("rc.created_at DESC, rc.id DESC")
	if status != "" {
		q = q.Where("rc.status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return cases, nil
}

func (d *DB) GetCase(ctx context.Context, id int64) (*models.ReconciliationCase, error) {
	var c models.ReconciliationCase
	err := d.Bun.NewSelect().Model(&c).Where("rc.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("reconciliation case", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ResolveCase closes an OPEN case. Resolving twice is a ConflictError.
func (d *DB) ResolveCase(ctx context.Context, id int64, note string, at time.Time) (*models.ReconciliationCase, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.ReconciliationCase)(nil)).
		Set("status = ?", models.CaseResolved).
		Set("note = ?", note).
		Set("resolved_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status = ?", models.CaseOpen).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	c, err := d.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &apperrors.ConflictError{Resource: "reconciliation_case", ID: id, Reason: "already_resolved", Message: "case is " + c.Status}
	}
	return c, nil
}
