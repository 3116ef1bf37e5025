package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

type DBLayer interface {
	CategoriesForEvent(ctx context.Context, eventID int64) ([]models.CategoryTicket, error)
	ReplaceCategories(ctx context.Context, eventID int64, wanted []models.CategoryTicket) ([]models.CategoryTicket, error)
}

type Cache interface {
	Get(ctx context.Context, eventID int64) ([]models.CategoryTicket, bool, error)
	Set(ctx context.Context, eventID int64, categories []models.CategoryTicket) error
	Invalidate(ctx context.Context, eventID int64) error
}

type Service struct {
	DB     DBLayer
	Cache  Cache
	Logger *logger.Logger
}

func NewService(db DBLayer, cache Cache, log *logger.Logger) *Service {
	return &Service{DB: db, Cache: cache, Logger: log}
}

type CategoryInput struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	MaxQuantity int             `json:"max_quantity"`
	Active      *bool           `json:"active,omitempty"`
}

// Table returns the event's seat-type lookup table. The cache is best effort:
// read or write failures fall through to the store.
func (s *Service) Table(ctx context.Context, eventID int64) (*Table, error) {
	if s.Cache != nil {
		categories, ok, err := s.Cache.Get(ctx, eventID)
		if err != nil {
			s.Logger.Warn("CATALOG", fmt.Sprintf("Category cache read for event %d failed: %v", eventID, err))
		} else if ok {
			if table, err := NewTable(eventID, categories); err == nil {
				return table, nil
			}
			s.Logger.Warn("CATALOG", fmt.Sprintf("Discarding inconsistent cached table for event %d", eventID))
		}
	}

	categories, err := s.DB.CategoriesForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	table, err := NewTable(eventID, categories)
	if err != nil {
		return nil, fmt.Errorf("category table of event %d is inconsistent: %w", eventID, err)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, eventID, categories); err != nil {
			s.Logger.Warn("CATALOG", fmt.Sprintf("Category cache write for event %d failed: %v", eventID, err))
		}
	}
	return table, nil
}

// Configure supersedes the event's categories and drops the cached table.
func (s *Service) Configure(ctx context.Context, eventID int64, inputs []CategoryInput) (*Table, error) {
	if len(inputs) == 0 {
		return nil, apperrors.Validation("categories", "at least one category is required")
	}

	seen := make(map[string]bool, len(inputs))
	wanted := make([]models.CategoryTicket, 0, len(inputs))
	for _, in := range inputs {
		name := strings.ToUpper(strings.TrimSpace(in.Name))
		switch {
		case name == "":
			return nil, apperrors.Validation("name", "category name is required")
		case seen[name]:
			return nil, apperrors.Validation("name", fmt.Sprintf("category %s is listed twice", name))
		case in.Price.IsNegative():
			return nil, apperrors.Validation("price", fmt.Sprintf("category %s has a negative price", name))
		case in.MaxQuantity <= 0:
			return nil, apperrors.Validation("max_quantity", fmt.Sprintf("category %s needs a positive max_quantity", name))
		}
		seen[name] = true

		status := models.CategoryActive
		if in.Active != nil && !*in.Active {
			status = models.CategoryInactive
		}
		wanted = append(wanted, models.CategoryTicket{
			EventID:     eventID,
			Name:        name,
			Price:       in.Price,
			MaxQuantity: in.MaxQuantity,
			Status:      status,
		})
	}

	categories, err := s.DB.ReplaceCategories(ctx, eventID, wanted)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, eventID); err != nil {
			s.Logger.Error("CATALOG", fmt.Sprintf("Failed to invalidate category table of event %d: %v", eventID, err))
		}
	}

	s.Logger.Info("CATALOG", fmt.Sprintf("Event %d now has %d categories", eventID, len(categories)))
	return NewTable(eventID, categories)
}
