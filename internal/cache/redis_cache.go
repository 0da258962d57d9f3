package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces cache keys.
const KeyPrefix = "wppq:sent:"

// RedisCache stores deliveries as JSON values with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache wraps an existing client.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type sentValue struct {
	Recipient  string    `json:"recipient"`
	DeliveryID string    `json:"deliveryId"`
	SentAt     time.Time `json:"sentAt"`
}

// StoreSent implements DeliveryCache.
func (c *RedisCache) StoreSent(ctx context.Context, messageID, recipient, deliveryID string, sentAt time.Time) error {
	b, err := json.Marshal(sentValue{
		Recipient:  recipient,
		DeliveryID: deliveryID,
		SentAt:     sentAt.UTC(),
	})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, KeyPrefix+messageID, b, c.ttl).Err()
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
