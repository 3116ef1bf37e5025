package models

import "time"

// SeatStatusEvent is published to Kafka and the SSE seat stream whenever seats
// change hands. Status is the seat's new state from a buyer's point of view.
type SeatStatusEvent struct {
	EventID int64     `json:"event_id"`
	SeatIDs []int64   `json:"seat_ids"`
	Status  string    `json:"status"`
	At      time.Time `json:"at"`
}

const (
	SeatStatusHeld      = "HELD"
	SeatStatusBooked    = "BOOKED"
	SeatStatusAvailable = "AVAILABLE"
)

func NewSeatStatusEvent(eventID int64, seatIDs []int64, status string) SeatStatusEvent {
	return SeatStatusEvent{
		EventID: eventID,
		SeatIDs: seatIDs,
		Status:  status,
		At:      time.Now().UTC(),
	}
}
