package bus

import "time"

// Event kinds published by the daemon. Subscribers filter on the
// namespace prefix, e.g. "dispatch." or "gateway.".
const (
	KindEnqueued   = "dispatch.enqueued"
	KindStarted    = "dispatch.started"
	KindStopped    = "dispatch.stopped"
	KindSent       = "dispatch.sent"
	KindFailed     = "dispatch.failed"
	KindDrained    = "dispatch.drained"
	KindRetried    = "dispatch.retried"
	KindDailyReset = "dispatch.daily_reset"

	KindGatewayStatus = "gateway.status_changed"
	KindGatewayQR     = "gateway.qr_generated"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
