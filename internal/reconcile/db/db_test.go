package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/database/dbtest"
	"ms-reservation/internal/models"
	"ms-reservation/internal/reconcile/db"
)

func setupTestDB(t *testing.T) *db.DB {
	bunDB := dbtest.New(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cases := []models.ReconciliationCase{
		{TxnRef: "u1_5_1", UserID: "u1", EventID: 5, Amount: decimal.NewFromInt(200), Reason: "seat_taken", Status: models.CaseOpen, CreatedAt: base},
		{TxnRef: "u2_5_2", UserID: "u2", EventID: 5, Amount: decimal.NewFromInt(100), Reason: "amount_mismatch", Status: models.CaseOpen, CreatedAt: base.Add(time.Hour)},
		{TxnRef: "u3_5_3", UserID: "u3", EventID: 5, Amount: decimal.NewFromInt(100), Reason: "event_started", Status: models.CaseResolved, CreatedAt: base.Add(2 * time.Hour)},
	}
	_, err := bunDB.NewInsert().Model(&cases).Exec(context.Background())
	require.NoError(t, err)
	return &db.DB{Bun: bunDB}
}

func TestListCases(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	open, err := store.ListCases(ctx, models.CaseOpen)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "u2_5_2", open[0].TxnRef, "newest first")

	all, err := store.ListCases(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestResolveCase(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	open, err := store.ListCases(ctx, models.CaseOpen)
	require.NoError(t, err)
	id := open[0].ID

	resolved, err := store.ResolveCase(ctx, id, "refunded via gateway portal", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.CaseResolved, resolved.Status)
	assert.Equal(t, "refunded via gateway portal", resolved.Note)
	assert.False(t, resolved.ResolvedAt.IsZero())

	_, err = store.ResolveCase(ctx, id, "again", time.Now())
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	_, err = store.ResolveCase(ctx, 999, "missing", time.Now())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
