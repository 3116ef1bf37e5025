package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CategoriesForEvent(ctx context.Context, eventID int64) ([]models.CategoryTicket, error) {
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

// ReplaceCategories makes wanted the event's active category set. Categories
// are matched by name: existing ones are updated in place, new ones inserted,
// and ones no longer wanted are set INACTIVE. Rows are never deleted because
// issued tickets reference them.
func (d *DB) ReplaceCategories(ctx context.Context, eventID int64, wanted []models.CategoryTicket) ([]models.CategoryTicket, error) {
	var result []models.CategoryTicket
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*models.Event)(nil)).Where("e.id = ?", eventID).Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NotFound("event", eventID)
		}

		var current []models.CategoryTicket
		if err := tx.NewSelect().Model(&current).Where("c.event_id = ?", eventID).Scan(ctx); err != nil {
			return err
		}
		byName := make(map[string]models.CategoryTicket, len(current))
		for _, c := range current {
			byName[strings.ToUpper(c.Name)] = c
		}

		kept := make(map[int64]bool, len(wanted))
		for _, w := range wanted {
			w.EventID = eventID
			if existing, ok := byName[strings.ToUpper(w.Name)]; ok {
				w.ID = existing.ID
				_, err = tx.NewUpdate().
					Model(&w).
					Column("price", "max_quantity", "status").
					WherePK().
					Exec(ctx)
			} else {
				w.ID = 0
				_, err = tx.NewInsert().Model(&w).Exec(ctx)
			}
			if err != nil {
				return fmt.Errorf("save category %s: %w", w.Name, err)
			}
			kept[w.ID] = true
		}

		for _, c := range current {
			if kept[c.ID] || c.Status == models.CategoryInactive {
				continue
			}
			_, err := tx.NewUpdate().
				Model((*models.CategoryTicket)(nil)).
				Set("status = ?", models.CategoryInactive).
				Where("id = ?", c.ID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("retire category %d: %w", c.ID, err)
			}
		}

		return tx.NewSelect().Model(&result).Where("c.event_id = ?", eventID).OrderExpr("c.id ASC").Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
