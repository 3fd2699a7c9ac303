// Package socket implements the client side of the kitHttp event protocol:
// a resilient websocket client with automatic reconnection, heartbeat-backed
// liveness, persistent and one-shot event listeners, and request/response
// correlation layered on top of a fire-and-forget transport.
package socket

import (
	"errors"
)

// EventError is the reserved event name peers use to report failures.
const EventError = "error"

// Frame is one JSON message unit exchanged over the transport. Callback
// carries the correlation token and is present only when the sender expects,
// or is fulfilling, a correlated reply.
type Frame struct {
	Event    string      `json:"event"`
	Data     interface{} `json:"data,omitempty"`
	Callback string      `json:"callback,omitempty"`
}

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidMessage   = errors.New("invalid message format")
	ErrTimeout          = errors.New("operation timed out")
)
