// Package telemetry emits start/end/error events for fetch operations on
// a single named channel. Emission never fails into the request path.
package telemetry

import "time"

// Event versions and types.
const (
	EventVersion = 1

	TypeStart = "start"
	TypeEnd   = "end"
	TypeError = "error"
)

// ChannelName is the single stream all fetch events share.
const ChannelName = "fetch-events"

// Event is one telemetry record. Start events carry method and the
// redacted URL; end events carry status and duration; error events carry
// the message with optional code and status.
type Event struct {
	V         int    `json:"v"`
	Type      string `json:"type"`
	RequestID string `json:"request_id"`

	Method string `json:"method,omitempty"`
	URL    string `json:"url,omitempty"` // always redacted

	ContextRequestID string `json:"context_request_id,omitempty"`
	OperationID      string `json:"operation_id,omitempty"`

	Status     int     `json:"status,omitempty"`
	Code       string  `json:"code,omitempty"`
	Message    string  `json:"message,omitempty"`
	DurationMs float64 `json:"duration_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
