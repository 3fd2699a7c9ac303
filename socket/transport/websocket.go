package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport dials a websocket URL and keeps the connection alive by
// sending ping frames every Heartbeat interval. A pong must arrive within two
// heartbeat intervals or the next read fails, which the owning client treats
// like any other transport error.
type WebSocketTransport struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	url       string
	dialer    *websocket.Dialer
	headers   http.Header
	connected bool

	heartbeat        time.Duration
	handshakeTimeout time.Duration
	writeTimeout     time.Duration

	pingStop chan struct{}
}

type WebSocketOption func(*WebSocketTransport)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.headers = headers
	}
}

// WithHeartbeat sets the keepalive ping interval. Zero disables pings and
// read deadlines entirely.
func WithHeartbeat(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.heartbeat = d
	}
}

func WithHandshakeTimeout(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.handshakeTimeout = d
	}
}

func WithWriteTimeout(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = d
	}
}

func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:              url,
		dialer:           websocket.DefaultDialer,
		headers:          make(http.Header),
		heartbeat:        30 * time.Second,
		handshakeTimeout: 10 * time.Second,
		writeTimeout:     10 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	dialer := *t.dialer
	dialer.HandshakeTimeout = t.handshakeTimeout

	conn, _, err := dialer.DialContext(ctx, t.url, t.headers)
	if err != nil {
		return err
	}

	t.conn = conn
	t.connected = true

	if t.heartbeat > 0 {
		pongWait := 2 * t.heartbeat
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		t.pingStop = make(chan struct{})
		go t.pingLoop(conn, t.pingStop)
	}

	return nil
}

func (t *WebSocketTransport) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (t *WebSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return websocket.ErrCloseSent
	}

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}

	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocketTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	connected := t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		return nil, websocket.ErrCloseSent
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	return message, nil
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return nil
	}

	if t.pingStop != nil {
		close(t.pingStop)
		t.pingStop = nil
	}

	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	err := t.conn.Close()
	t.connected = false
	t.conn = nil

	return err
}
