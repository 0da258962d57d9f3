// Package cache remembers recent successful deliveries outside the process.
package cache

import (
	"context"
	"time"
)

// DeliveryCache records confirmed sends keyed by message id.
type DeliveryCache interface {
	StoreSent(ctx context.Context, messageID, recipient, deliveryID string, sentAt time.Time) error
}

// Nop discards everything. Used when Redis is not configured.
type Nop struct{}

// StoreSent implements DeliveryCache.
func (Nop) StoreSent(context.Context, string, string, string, time.Time) error { return nil }
