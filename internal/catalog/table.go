package catalog

import (
	"fmt"
	"sort"
	"strings"

	"ms-reservation/internal/models"
)

// Table maps each seat type of an event onto its ticket category. Seat types
// and category names correspond one to one.
type Table struct {
	EventID    int64
	bySeatType map[string]models.CategoryTicket
	byID       map[int64]models.CategoryTicket
}

func normalize(seatType string) string {
	return strings.ToUpper(strings.TrimSpace(seatType))
}

func NewTable(eventID int64, categories []models.CategoryTicket) (*Table, error) {
	t := &Table{
		EventID:    eventID,
		bySeatType: make(map[string]models.CategoryTicket, len(categories)),
		byID:       make(map[int64]models.CategoryTicket, len(categories)),
	}
	for _, c := range categories {
		if c.EventID != eventID {
			return nil, fmt.Errorf("category %d belongs to event %d, not %d", c.ID, c.EventID, eventID)
		}
		key := normalize(c.Name)
		if key == "" {
			return nil, fmt.Errorf("category %d has no name", c.ID)
		}
		if prev, dup := t.bySeatType[key]; dup {
			return nil, fmt.Errorf("seat type %s maps to categories %d and %d", key, prev.ID, c.ID)
		}
		t.bySeatType[key] = c
		t.byID[c.ID] = c
	}
	return t, nil
}

// Lookup returns the category for a seat type, active or not.
func (t *Table) Lookup(seatType string) (models.CategoryTicket, bool) {
	c, ok := t.bySeatType[normalize(seatType)]
	return c, ok
}

func (t *Table) ByID(id int64) (models.CategoryTicket, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// Categories returns the table's categories ordered by id.
func (t *Table) Categories() []models.CategoryTicket {
	out := make([]models.CategoryTicket, 0, len(t.byID))
	for _, c := range t.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
