package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(rdb, ttl)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheStoreSent(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, 10*time.Second)
	sentAt := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	if err := c.StoreSent(context.Background(), "m-42", "972541234567", "BAE5F4", sentAt); err != nil {
		t.Fatalf("StoreSent() error: %v", err)
	}

	key := KeyPrefix + "m-42"
	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttl)
	}

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	var got sentValue
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatal(err)
	}
	if got.DeliveryID != "BAE5F4" || got.Recipient != "972541234567" {
		t.Errorf("stored value = %+v", got)
	}
	if !got.SentAt.Equal(sentAt) {
		t.Errorf("SentAt = %v, want %v", got.SentAt, sentAt)
	}
}

func TestRedisCacheOverwrites(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := c.StoreSent(ctx, "m1", "r", "first", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := c.StoreSent(ctx, "m1", "r", "second", time.Now()); err != nil {
		t.Fatal(err)
	}
	raw, err := mr.Get(KeyPrefix + "m1")
	if err != nil {
		t.Fatal(err)
	}
	var got sentValue
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatal(err)
	}
	if got.DeliveryID != "second" {
		t.Errorf("delivery id = %q, want overwritten value", got.DeliveryID)
	}
}

func TestRedisCacheExpires(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, time.Second)
	if err := c.StoreSent(context.Background(), "m1", "r", "d", time.Now()); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Second)
	if mr.Exists(KeyPrefix + "m1") {
		t.Error("key should have expired")
	}
}

func TestRedisCacheContextCanceled(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.StoreSent(ctx, "m1", "r", "d", time.Now()); err == nil {
		t.Fatal("expected error due to canceled context")
	}
}
