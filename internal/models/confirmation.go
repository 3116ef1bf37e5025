package models

import "github.com/shopspring/decimal"

// TicketConfirmation is the payload handed to the notification sink after a
// successful settlement.
type TicketConfirmation struct {
	UserID     string            `json:"user_id"`
	EventID    int64             `json:"event_id"`
	EventTitle string            `json:"event_title"`
	BillID     int64             `json:"bill_id,omitempty"`
	TxnRef     string            `json:"txn_ref"`
	Total      decimal.Decimal   `json:"total"`
	Tickets    []ConfirmedTicket `json:"tickets"`
}

type ConfirmedTicket struct {
	TicketID  int64           `bun:"ticket_id" json:"ticket_id"`
	SeatID    int64           `bun:"seat_id" json:"seat_id"`
	SeatCode  string          `bun:"seat_code" json:"seat_code"`
	Category  string          `bun:"category" json:"category"`
	Price     decimal.Decimal `bun:"price" json:"price"`
	QRPayload string          `bun:"qr_payload" json:"qr_payload"`
}

func (c TicketConfirmation) TicketIDs() []int64 {
	ids := make([]int64, 0, len(c.Tickets))
	for _, t := range c.Tickets {
		ids = append(ids, t.TicketID)
	}
	return ids
}
