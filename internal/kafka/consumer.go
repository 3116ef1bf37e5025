package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-reservation/internal/logger"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Handler func(ctx context.Context, msg kafka.Message) error

// Consumer processes one message at a time. MaxAttempts and Backoff bound
// how long a failing message holds up its partition.
type Consumer struct {
	reader      messageReader
	topic       string
	logger      *logger.Logger
	MaxAttempts int
	Backoff     time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, topic: topic, logger: log, MaxAttempts: defaultMaxAttempts, Backoff: defaultBackoff}
}

// Run hands every message to handle until ctx is cancelled. A failing message
// is retried in place with doubling backoff; the offset does not move past it
// until handle succeeds or MaxAttempts is spent, after which it is logged as
// dropped and committed. Cancelling during retries leaves it uncommitted.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.logger.LogKafka("CONSUME", c.topic, "Consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				c.logger.LogKafka("CONSUME", c.topic, "Consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", c.topic, err)
		}

		if err := c.process(ctx, handle, msg); err != nil {
			if ctx.Err() != nil {
				c.logger.LogKafka("CONSUME", c.topic, fmt.Sprintf("Consumer stopped with offset %d unprocessed", msg.Offset))
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Dropping message with key %s at offset %d on %s: %v", msg.Key, msg.Offset, c.topic, err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.LogKafka("CONSUME", c.topic, fmt.Sprintf("Commit failed at offset %d: %v", msg.Offset, err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, handle Handler, msg kafka.Message) error {
	attempts := max(c.MaxAttempts, 1)
	backoff := c.Backoff
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = handle(ctx, msg); err == nil {
			return nil
		}
		c.logger.LogKafka("CONSUME", c.topic, fmt.Sprintf("Handler failed for key %s at offset %d (attempt %d/%d): %v", msg.Key, msg.Offset, attempt, attempts, err))
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
