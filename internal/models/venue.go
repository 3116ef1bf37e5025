package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	AreaAvailable   = "AVAILABLE"
	AreaUnavailable = "UNAVAILABLE"

	SeatAvailable = "AVAILABLE"
	SeatInactive  = "INACTIVE"
)

const (
	EventDraft     = "DRAFT"
	EventOpen      = "OPEN"
	EventClosed    = "CLOSED"
	EventCancelled = "CANCELLED"
)

// ActiveEventStatuses are the statuses that occupy an area's calendar.
var ActiveEventStatuses = []string{EventOpen, EventClosed, EventDraft}

type VenueArea struct {
	bun.BaseModel `bun:"table:venue_areas,alias:va"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	VenueID  int64  `bun:"venue_id,notnull" json:"venue_id"`
	Name     string `bun:"name,notnull" json:"name"`
	Capacity int    `bun:"capacity,notnull" json:"capacity"`
	Status   string `bun:"status,notnull" json:"status"`
	// Version is bumped inside scheduling transactions so that two schedulers
	// working on the same area serialize on the row.
	Version int64 `bun:"version,notnull,default:0" json:"-"`
}

type Seat struct {
	bun.BaseModel `bun:"table:seats,alias:s"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	AreaID   int64  `bun:"area_id,notnull" json:"area_id"`
	SeatCode string `bun:"seat_code,notnull" json:"seat_code"`
	RowNo    string `bun:"row_no" json:"row_no"`
	ColumnNo int    `bun:"column_no" json:"column_no"`
	Status   string `bun:"status,notnull" json:"status"`
	SeatType string `bun:"seat_type" json:"seat_type"`
}

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	AreaID    int64     `bun:"area_id,notnull" json:"area_id"`
	Title     string    `bun:"title,notnull" json:"title"`
	StartTime time.Time `bun:"start_time,notnull" json:"start_time"`
	EndTime   time.Time `bun:"end_time,notnull" json:"end_time"`
	Status    string    `bun:"status,notnull" json:"status"`
	MaxSeats  int       `bun:"max_seats" json:"max_seats"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// User is the read-only slice of the identity directory needed for notifications.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID       string `bun:"id,pk" json:"id"`
	Email    string `bun:"email,notnull" json:"email"`
	FullName string `bun:"full_name" json:"full_name"`
}
