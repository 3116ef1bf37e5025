package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const holdKeyPrefix = "hold:"

// HoldMarkers keeps one expiring key per PENDING ticket. When a key expires
// Redis publishes a keyspace event and the sweeper releases the hold without
// waiting for its next pass.
type HoldMarkers struct {
	Client *redis.Client
}

func NewHoldMarkers(client *redis.Client) *HoldMarkers {
	return &HoldMarkers{Client: client}
}

func HoldKey(ticketID int64) string {
	return holdKeyPrefix + strconv.FormatInt(ticketID, 10)
}

// ParseHoldKey returns the ticket id of a hold key.
func ParseHoldKey(key string) (int64, bool) {
	if !strings.HasPrefix(key, holdKeyPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(key, holdKeyPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *HoldMarkers) Mark(ctx context.Context, eventID int64, ticketIDs []int64, ttl time.Duration) error {
	pipe := h.Client.TxPipeline()
	value := strconv.FormatInt(eventID, 10)
	for _, id := range ticketIDs {
		pipe.Set(ctx, HoldKey(id), value, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (h *HoldMarkers) Clear(ctx context.Context, ticketIDs []int64) error {
	if len(ticketIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		keys = append(keys, HoldKey(id))
	}
	return h.Client.Del(ctx, keys...).Err()
}

// EnableExpiryEvents turns on expired-key notifications, keeping whatever
// other classes are already configured.
func (h *HoldMarkers) EnableExpiryEvents(ctx context.Context) error {
	current, err := h.Client.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		return err
	}
	flags := ""
	if len(current) == 2 {
		if s, ok := current[1].(string); ok {
			flags = s
		}
	}
	if strings.Contains(flags, "E") && (strings.Contains(flags, "x") || strings.Contains(flags, "A")) {
		return nil
	}
	if !strings.Contains(flags, "E") {
		flags += "E"
	}
	if !strings.Contains(flags, "x") {
		flags += "x"
	}
	return h.Client.ConfigSet(ctx, "notify-keyspace-events", flags).Err()
}

// SubscribeExpired delivers the ticket id of every expired hold key until ctx
// is done.
func (h *HoldMarkers) SubscribeExpired(ctx context.Context, handle func(ticketID int64)) error {
	pattern := "__keyevent@" + strconv.Itoa(h.Client.Options().DB) + "__:expired"
	sub := h.Client.Subscribe(ctx, pattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if id, ok := ParseHoldKey(msg.Payload); ok {
				handle(id)
			}
		}
	}
}
