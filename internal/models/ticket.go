package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const (
	CategoryActive   = "ACTIVE"
	CategoryInactive = "INACTIVE"
)

const (
	TicketPending    = "PENDING"
	TicketBooked     = "BOOKED"
	TicketCheckedIn  = "CHECKED_IN"
	TicketCheckedOut = "CHECKED_OUT"
	TicketCancelled  = "CANCELLED"
	TicketExpired    = "EXPIRED"
)

// TakenTicketStatuses make a seat unavailable for the ticket's event.
var TakenTicketStatuses = []string{TicketPending, TicketBooked, TicketCheckedIn, TicketCheckedOut}

type CategoryTicket struct {
	bun.BaseModel `bun:"table:category_tickets,alias:c"`

	ID          int64           `bun:"id,pk,autoincrement" json:"id"`
	EventID     int64           `bun:"event_id,notnull" json:"event_id"`
	Name        string          `bun:"name,notnull" json:"name"`
	Price       decimal.Decimal `bun:"price,type:numeric(12,2),notnull" json:"price"`
	MaxQuantity int             `bun:"max_quantity,notnull" json:"max_quantity"`
	Status      string          `bun:"status,notnull" json:"status"`
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	EventID      int64     `bun:"event_id,notnull" json:"event_id"`
	UserID       string    `bun:"user_id,notnull" json:"user_id"`
	CategoryID   int64     `bun:"category_id,notnull" json:"category_id"`
	SeatID       *int64    `bun:"seat_id" json:"seat_id,omitempty"`
	BillID       *int64    `bun:"bill_id" json:"bill_id,omitempty"`
	Status       string    `bun:"status,notnull" json:"status"`
	QRCode       string    `bun:"qr_code,nullzero" json:"qr_code,omitempty"`
	CheckinTime  time.Time `bun:"checkin_time,nullzero" json:"checkin_time,omitempty"`
	CheckoutTime time.Time `bun:"checkout_time,nullzero" json:"checkout_time,omitempty"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
}

func (t Ticket) SeatIDValue() int64 {
	if t.SeatID == nil {
		return 0
	}
	return *t.SeatID
}

const (
	BillPending = "PENDING"
	BillPaid    = "PAID"
	BillFailed  = "FAILED"
)

type Bill struct {
	bun.BaseModel `bun:"table:bills,alias:b"`

	ID            int64           `bun:"id,pk,autoincrement" json:"id"`
	UserID        string          `bun:"user_id,notnull" json:"user_id"`
	TxnRef        string          `bun:"txn_ref,notnull,unique" json:"txn_ref"`
	TotalAmount   decimal.Decimal `bun:"total_amount,type:numeric(14,2),notnull" json:"total_amount"`
	Currency      string          `bun:"currency,notnull" json:"currency"`
	PaymentMethod string          `bun:"payment_method,notnull" json:"payment_method"`
	PaymentStatus string          `bun:"payment_status,notnull" json:"payment_status"`
	GatewayTxnNo  string          `bun:"gateway_txn_no" json:"gateway_txn_no,omitempty"`
	CreatedAt     time.Time       `bun:"created_at,notnull" json:"created_at"`
	PaidAt        time.Time       `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
}

const (
	CaseOpen     = "OPEN"
	CaseResolved = "RESOLVED"
)

// ReconciliationCase records a confirmed payment whose seats could not be secured.
type ReconciliationCase struct {
	bun.BaseModel `bun:"table:reconciliation_cases,alias:rc"`

	ID         int64           `bun:"id,pk,autoincrement" json:"id"`
	TxnRef     string          `bun:"txn_ref,notnull,unique" json:"txn_ref"`
	BillID     *int64          `bun:"bill_id" json:"bill_id,omitempty"`
	UserID     string          `bun:"user_id,notnull" json:"user_id"`
	EventID    int64           `bun:"event_id,notnull" json:"event_id"`
	Amount     decimal.Decimal `bun:"amount,type:numeric(14,2),notnull" json:"amount"`
	Reason     string          `bun:"reason,notnull" json:"reason"`
	Detail     string          `bun:"detail" json:"detail"`
	Descriptor string          `bun:"descriptor" json:"-"`
	Status     string          `bun:"status,notnull" json:"status"`
	Note       string          `bun:"note" json:"note,omitempty"`
	CreatedAt  time.Time       `bun:"created_at,notnull" json:"created_at"`
	ResolvedAt time.Time       `bun:"resolved_at,nullzero" json:"resolved_at,omitempty"`
}
