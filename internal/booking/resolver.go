package booking

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/models"
)

// PricedSeat is a seat that passed every availability check, together with
// the category that prices it.
type PricedSeat struct {
	Seat     models.Seat
	Category models.CategoryTicket
}

// Resolve checks each requested seat in order and stops at the first one that
// cannot be sold for the event.
func (s *Service) Resolve(ctx context.Context, event *models.Event, seatIDs []int64) ([]PricedSeat, decimal.Decimal, error) {
	seats, err := s.DB.SeatsByID(ctx, seatIDs)
	if err != nil {
		return nil, decimal.Zero, err
	}
	taken, err := s.DB.TakenSeats(ctx, event.ID, seatIDs)
	if err != nil {
		return nil, decimal.Zero, err
	}
	table, err := s.Categories.Table(ctx, event.ID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	priced := make([]PricedSeat, 0, len(seatIDs))
	total := decimal.Zero
	for _, id := range seatIDs {
		seat, ok := seats[id]
		switch {
		case !ok:
			return nil, decimal.Zero, apperrors.SeatInvalid(id, apperrors.ReasonNotConfigured, "seat does not exist")
		case seat.AreaID != event.AreaID:
			return nil, decimal.Zero, apperrors.SeatInvalid(id, apperrors.ReasonWrongArea, fmt.Sprintf("seat belongs to area %d, event is in area %d", seat.AreaID, event.AreaID))
		case seat.Status != models.SeatAvailable:
			return nil, decimal.Zero, apperrors.SeatInvalid(id, apperrors.ReasonNotAvailable, "seat is "+seat.Status)
		case taken[id]:
			return nil, decimal.Zero, apperrors.SeatTaken(id)
		case seat.SeatType == "":
			return nil, decimal.Zero, apperrors.SeatInvalid(id, apperrors.ReasonNoSeatType, "seat has no seat type")
		}

		category, ok := table.Lookup(seat.SeatType)
		if !ok || category.Status != models.CategoryActive {
			return nil, decimal.Zero, apperrors.SeatInvalid(id, apperrors.ReasonNoActiveCategory, fmt.Sprintf("no active category for seat type %s", seat.SeatType))
		}
		priced = append(priced, PricedSeat{Seat: seat, Category: category})
		total = total.Add(category.Price)
	}
	return priced, total, nil
}

// checkQuota refuses the order when any category would be sold past its
// max_quantity. A max_quantity of zero means unlimited.
func (s *Service) checkQuota(ctx context.Context, eventID int64, priced []PricedSeat) error {
	requested := make(map[int64]int)
	for _, p := range priced {
		requested[p.Category.ID]++
	}
	sold, err := s.DB.SoldByCategory(ctx, eventID)
	if err != nil {
		return err
	}
	for _, p := range priced {
		c := p.Category
		if c.MaxQuantity > 0 && sold[c.ID]+requested[c.ID] > c.MaxQuantity {
			return &apperrors.ValidationError{
				Field:   "category",
				SeatID:  p.Seat.ID,
				Reason:  apperrors.ReasonQuotaExceeded,
				Message: fmt.Sprintf("category %s has %d of %d left", c.Name, max(c.MaxQuantity-sold[c.ID], 0), c.MaxQuantity),
			}
		}
	}
	return nil
}
