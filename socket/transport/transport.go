// Package transport provides the bidirectional message transports the
// kitHttp event protocol runs over. The client side dials out with a
// configurable heartbeat; the server side wraps an accepted connection with
// a buffered write pump.
package transport

import "context"

// Transport is a client-side bidirectional message stream. A Transport is
// single-use: it is dialed once with Connect and discarded after Close.
type Transport interface {
	Connect(ctx context.Context) error
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// ServerTransport wraps one accepted connection on the server side. Read
// reports the message kind so callers can ignore binary payloads without the
// transport having an opinion about them.
type ServerTransport interface {
	Read() (kind MessageKind, data []byte, err error)
	Write(data []byte) error
	Close(reason string) error
	ID() string
}

// MessageKind classifies inbound server-side messages.
type MessageKind int

const (
	KindText MessageKind = iota
	KindBinary
)
