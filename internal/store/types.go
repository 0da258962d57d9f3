package store

import "errors"

// ErrRecordNotFound is returned by updates addressed at a missing record.
var ErrRecordNotFound = errors.New("record not found")

// Record is a generic CRM row: a customer, a property, or any other kind,
// carrying a free-form field map.
type Record struct {
	Kind      string         `json:"kind"`
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}

// SendStatus is the outcome stored in the send log.
type SendStatus string

const (
	SendSent   SendStatus = "sent"
	SendFailed SendStatus = "failed"
)

// SendLogEntry is one dispatch attempt as recorded by the journal.
type SendLogEntry struct {
	ID         int64      `json:"id"`
	MessageID  string     `json:"message_id"`
	Recipient  string     `json:"recipient"`
	Body       string     `json:"body"`
	Status     SendStatus `json:"status"`
	DeliveryID string     `json:"delivery_id,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  int64      `json:"created_at"`
}
