package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-reservation/internal/models"
)

// Cache keeps each event's category table in Redis so that hold requests do
// not reload categories on every call.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{Client: client, TTL: ttl}
}

func key(eventID int64) string {
	return fmt.Sprintf("category_table:%d", eventID)
}

// Get reports a miss with ok=false and a nil error.
func (c *Cache) Get(ctx context.Context, eventID int64) ([]models.CategoryTicket, bool, error) {
	raw, err := c.Client.Get(ctx, key(eventID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var categories []models.CategoryTicket
	if err := json.Unmarshal(raw, &categories); err != nil {
		return nil, false, fmt.Errorf("decode cached category table %d: %w", eventID, err)
	}
	return categories, true, nil
}

func (c *Cache) Set(ctx context.Context, eventID int64, categories []models.CategoryTicket) error {
	raw, err := json.Marshal(categories)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key(eventID), raw, c.TTL).Err()
}

func (c *Cache) Invalidate(ctx context.Context, eventID int64) error {
	return c.Client.Del(ctx, key(eventID)).Err()
}
