package sse

import (
	"context"
	"sync"

	"ms-reservation/internal/models"
)

// SeatEventEmitter fans seat status changes out to the SSE clients watching
// an event's seat map.
type SeatEventEmitter struct {
	clients map[int64][]chan models.SeatStatusEvent
	mu      sync.RWMutex
}

func NewSeatEventEmitter() *SeatEventEmitter {
	return &SeatEventEmitter{
		clients: make(map[int64][]chan models.SeatStatusEvent),
	}
}

// Subscribe registers a client for eventID until ctx is done, after which the
// returned channel is closed.
func (e *SeatEventEmitter) Subscribe(ctx context.Context, eventID int64) <-chan models.SeatStatusEvent {
	ch := make(chan models.SeatStatusEvent, 16)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, ch)
	}()
	return ch
}

// Emit never blocks: a client whose buffer is full misses the update and
// picks up the seat state on its next full refresh.
func (e *SeatEventEmitter) Emit(evt models.SeatStatusEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[evt.EventID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (e *SeatEventEmitter) remove(eventID int64, ch chan models.SeatStatusEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, c := range clients {
		if c == ch {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

func (e *SeatEventEmitter) ClientCount(eventID int64) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}
