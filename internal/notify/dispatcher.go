package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/metrics"
	"ms-reservation/internal/models"
)

// Sink delivers one ticket confirmation.
type Sink interface {
	Deliver(ctx context.Context, c models.TicketConfirmation) error
}

// Dispatcher decouples settlement from delivery. Dispatch never blocks; a
// single worker drains the queue into the sink.
type Dispatcher struct {
	sink    Sink
	queue   chan models.TicketConfirmation
	logger  *logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sink Sink, queueSize int, log *logger.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan models.TicketConfirmation, queueSize),
		logger:  log,
		timeout: 30 * time.Second,
	}
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Stop refuses new confirmations and waits for the queued ones to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) Dispatch(c models.TicketConfirmation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.fail(c, fmt.Errorf("dispatcher stopped"))
		return
	}
	select {
	case d.queue <- c:
		metrics.TrackNotification("queued")
	default:
		d.fail(c, fmt.Errorf("queue full (%d pending)", len(d.queue)))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for c := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sink.Deliver(ctx, c)
		cancel()
		if err != nil {
			d.fail(c, err)
			continue
		}
		metrics.TrackNotification("delivered")
		d.logger.Info("NOTIFY", fmt.Sprintf("Confirmation for %s delivered (%d tickets)", c.TxnRef, len(c.Tickets)))
	}
}

func (d *Dispatcher) fail(c models.TicketConfirmation, err error) {
	metrics.TrackNotification("failed")
	nerr := &apperrors.NotificationError{TicketIDs: c.TicketIDs(), Err: err}
	d.logger.Error("NOTIFY", nerr.Error())
}

// KafkaSink hands confirmations to the notifier through the confirmation topic.
type KafkaSink struct {
	Publisher Publisher
	Topic     string
}

func (k *KafkaSink) Deliver(ctx context.Context, c models.TicketConfirmation) error {
	return k.Publisher.Publish(ctx, k.Topic, c.TxnRef, c)
}
