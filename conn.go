package kithttp

import (
	"encoding/json"
	"log/slog"

	"github.com/gitvzz/kitHttp/socket"
	"github.com/gitvzz/kitHttp/socket/transport"
)

// Conn is one live server-side connection. Its real lifetime is governed by
// the receive loop that owns it; the connection registry only indexes it for
// lookup and broadcast.
type Conn struct {
	id     string
	tr     transport.ServerTransport
	logger *slog.Logger
}

func newConn(id string, tr transport.ServerTransport, logger *slog.Logger) *Conn {
	return &Conn{
		id:     id,
		tr:     tr,
		logger: logger.With("conn", id),
	}
}

// ID returns the connection's opaque identifier.
func (c *Conn) ID() string {
	return c.id
}

// Emit sends an uncorrelated event frame on this connection.
func (c *Conn) Emit(event string, data interface{}) error {
	return c.send(socket.Frame{Event: event, Data: data})
}

func (c *Conn) send(f socket.Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.tr.Write(raw)
}

// Close ends the connection, sending reason in the close frame. Idempotent.
func (c *Conn) Close(reason string) error {
	return c.tr.Close(reason)
}
