package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/sse"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// SeatFeed announces seat status changes to live seat-map viewers and to the
// seat status topic. Either side may be nil.
type SeatFeed struct {
	Publisher Publisher
	Topic     string
	Emitter   *sse.SeatEventEmitter
	Logger    *logger.Logger
	Timeout   time.Duration
}

func (f *SeatFeed) Publish(evt models.SeatStatusEvent) {
	if f == nil || len(evt.SeatIDs) == 0 {
		return
	}
	if f.Emitter != nil {
		f.Emitter.Emit(evt)
	}
	if f.Publisher == nil {
		return
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := f.Publisher.Publish(ctx, f.Topic, strconv.FormatInt(evt.EventID, 10), evt); err != nil {
			f.Logger.Warn("SEATS", fmt.Sprintf("Seat status %s for event %d not published: %v", evt.Status, evt.EventID, err))
		}
	}()
}
