package dispatch

import (
	"context"
	"errors"
	"time"
)

// ErrIndexOutOfRange is returned by positional operator actions when the
// index does not address an entry. State is left unmodified.
var ErrIndexOutOfRange = errors.New("index out of range")

// ErrMessageGone is returned when the message a positional call names by id
// has left the list, e.g. because it was sent in the meantime.
var ErrMessageGone = errors.New("message is no longer in the list")

// Sender delivers one message through a gateway. It returns the gateway's
// delivery id on success.
type Sender interface {
	Send(ctx context.Context, recipient, body string) (deliveryID string, err error)
}

// Message is a unit of work in the queue or the failed list.
type Message struct {
	ID            string    `json:"id"`
	Recipient     string    `json:"recipient"`
	Body          string    `json:"body"`
	FailureReason string    `json:"failure_reason,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	Queue         []Message `json:"queue"`
	Failed        []Message `json:"failed"`
	Sending       bool      `json:"sending"`
	TotalMessages int       `json:"total_messages"`
	Progress      float64   `json:"progress"`
	DailyCount    int       `json:"daily_count"`
	InFlight      string    `json:"in_flight,omitempty"`
	LastResetAt   time.Time `json:"last_reset_at"`
}

// SentEvent is the payload of dispatch.sent.
type SentEvent struct {
	Message    Message
	DeliveryID string
	SentAt     time.Time
	DailyCount int
}

// FailedEvent is the payload of dispatch.failed.
type FailedEvent struct {
	Message  Message
	FailedAt time.Time
}

// RunEvent is the payload of dispatch.started, dispatch.stopped and dispatch.drained.
type RunEvent struct {
	Remaining int
	Failed    int
	Progress  float64
}
