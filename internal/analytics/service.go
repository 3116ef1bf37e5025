// Package analytics reports ticket sales per event for organizers.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

// TicketRow is one seat-occupying ticket with the payment time of its bill.
type TicketRow struct {
	CategoryID int64        `bun:"category_id"`
	Status     string       `bun:"status"`
	PaidAt     bun.NullTime `bun:"paid_at"`
}

type DBLayer interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	Categories(ctx context.Context, eventID int64) ([]models.CategoryTicket, error)
	TicketRows(ctx context.Context, eventID int64) ([]TicketRow, error)
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log}
}

// EventSales is the sales report of one event. Held counts unpaid holds;
// revenue only counts sold tickets at their category price.
type EventSales struct {
	EventID         int64           `json:"event_id"`
	Title           string          `json:"title"`
	Status          string          `json:"status"`
	TicketsSold     int             `json:"tickets_sold"`
	CheckedIn       int             `json:"checked_in"`
	Held            int             `json:"held"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	SalesByCategory []CategorySales `json:"sales_by_category"`
	DailySales      []DailySales    `json:"daily_sales"`
}

type CategorySales struct {
	CategoryID  int64           `json:"category_id"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	Price       decimal.Decimal `json:"price"`
	MaxQuantity int             `json:"max_quantity"`
	TicketsSold int             `json:"tickets_sold"`
	Held        int             `json:"held"`
	Remaining   int             `json:"remaining"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type DailySales struct {
	Date        string          `json:"date"`
	TicketsSold int             `json:"tickets_sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// GetEventSales aggregates the event's tickets by category and by payment day (UTC).
func (s *Service) GetEventSales(ctx context.Context, eventID int64) (*EventSales, error) {
	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	categories, err := s.DB.Categories(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.TicketRows(ctx, eventID)
	if err != nil {
		return nil, err
	}

	report := &EventSales{
		EventID:         event.ID,
		Title:           event.Title,
		Status:          event.Status,
		TotalRevenue:    decimal.Zero,
		SalesByCategory: make([]CategorySales, 0, len(categories)),
		DailySales:      []DailySales{},
	}
	byID := make(map[int64]*CategorySales, len(categories))
	for _, c := range categories {
		report.SalesByCategory = append(report.SalesByCategory, CategorySales{
			CategoryID:  c.ID,
			Name:        c.Name,
			Status:      c.Status,
			Price:       c.Price,
			MaxQuantity: c.MaxQuantity,
			Revenue:     decimal.Zero,
		})
	}
	for i := range report.SalesByCategory {
		byID[report.SalesByCategory[i].CategoryID] = &report.SalesByCategory[i]
	}

	daily := make(map[string]*DailySales)
	for _, row := range rows {
		category, ok := byID[row.CategoryID]
		if !ok {
			s.Logger.Warn("ANALYTICS", "Ticket references a category outside its event")
			continue
		}
		if row.Status == models.TicketPending {
			category.Held++
			report.Held++
			continue
		}

		category.TicketsSold++
		category.Revenue = category.Revenue.Add(category.Price)
		report.TicketsSold++
		report.TotalRevenue = report.TotalRevenue.Add(category.Price)
		if row.Status == models.TicketCheckedIn || row.Status == models.TicketCheckedOut {
			report.CheckedIn++
		}

		if row.PaidAt.IsZero() {
			continue
		}
		day := row.PaidAt.UTC().Format(time.DateOnly)
		d, ok := daily[day]
		if !ok {
			d = &DailySales{Date: day, Revenue: decimal.Zero}
			daily[day] = d
		}
		d.TicketsSold++
		d.Revenue = d.Revenue.Add(category.Price)
	}

	for i := range report.SalesByCategory {
		c := &report.SalesByCategory[i]
		c.Remaining = max(c.MaxQuantity-c.TicketsSold-c.Held, 0)
	}
	for _, d := range daily {
		report.DailySales = append(report.DailySales, *d)
	}
	sort.Slice(report.DailySales, func(i, j int) bool { return report.DailySales[i].Date < report.DailySales[j].Date })
	return report, nil
}
