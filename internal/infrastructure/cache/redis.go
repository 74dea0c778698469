package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// Store is the part of the Redis client EventCache uses.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

const DefaultEventTTL = 72 * time.Hour

// EventCache remembers webhook event ids that were reconciled successfully.
type EventCache struct {
	RDB Store
	TTL time.Duration
}

func key(eventID string) string {
	return fmt.Sprintf("stripe:event:%s", eventID)
}

func (c *EventCache) Seen(ctx context.Context, eventID string) (bool, error) {
	_, err := c.RDB.Get(ctx, key(eventID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *EventCache) Remember(ctx context.Context, eventID, outcome string) error {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return c.RDB.Set(ctx, key(eventID), outcome, ttl).Err()
}
