// Package reconcile tracks payments the gateway confirmed but that could not
// be turned into tickets. Cases are settled by an operator; nothing is
// refunded automatically.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

type DBLayer interface {
	ListCases(ctx context.Context, status string) ([]models.ReconciliationCase, error)
	GetCase(ctx context.Context, id int64) (*models.ReconciliationCase, error)
	ResolveCase(ctx context.Context, id int64, note string, at time.Time) (*models.ReconciliationCase, error)
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
	now    func() time.Time
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log, now: time.Now}
}

func (s *Service) ListCases(ctx context.Context, status string) ([]models.ReconciliationCase, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case "", models.CaseOpen, models.CaseResolved:
	default:
		return nil, apperrors.Validation("status", fmt.Sprintf("unknown case status %s", status))
	}
	return s.DB.ListCases(ctx, status)
}

func (s *Service) GetCase(ctx context.Context, id int64) (*models.ReconciliationCase, error) {
	return s.DB.GetCase(ctx, id)
}

// ResolveCase records the operator's note, e.g. a refund reference, and
// closes the case.
func (s *Service) ResolveCase(ctx context.Context, id int64, note, operator string) (*models.ReconciliationCase, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperrors.Validation("note", "a resolution note is required")
	}
	if operator != "" {
		note = fmt.Sprintf("%s (by %s)", note, operator)
	}
	c, err := s.DB.ResolveCase(ctx, id, note, s.now())
	if err != nil {
		return nil, err
	}
	s.Logger.Info("RECONCILE", fmt.Sprintf("Case %d for %s resolved: %s", c.ID, c.TxnRef, note))
	return c, nil
}
