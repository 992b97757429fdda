package transport

import (
	"context"
	"time"
)

// Result contains the outcome of a delivery attempt as reported by the
// message gateway.
type Result struct {
	Success   bool
	MessageID string
	Error     string
	Timestamp time.Time
}

// Transport delivers a text message to a phone number. Implementations must
// be safe to call repeatedly with the same arguments; the pipeline gives
// at-least-once semantics and may retry a send that already went through.
type Transport interface {
	SendMessage(ctx context.Context, phone, body string) (*Result, error)
}
