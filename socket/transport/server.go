package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrWriteBufferFull is returned when a connection's outbound queue is full,
// which usually means the peer has stopped draining.
var ErrWriteBufferFull = errors.New("write buffer full")

// WebSocketServerTransport wraps one accepted websocket connection. Writes go
// through a buffered channel drained by a single pump goroutine, so any
// number of server goroutines (dispatch, broadcast) can write concurrently.
type WebSocketServerTransport struct {
	id           string
	conn         *websocket.Conn
	sendCh       chan []byte
	closeCh      chan struct{}
	writeWg      sync.WaitGroup
	writeTimeout time.Duration
	mu           sync.Mutex
	closed       bool
}

type WebSocketServerConfig struct {
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	SendBufferSize int
	MaxMessageSize int64
}

func DefaultWebSocketServerConfig() WebSocketServerConfig {
	return WebSocketServerConfig{
		WriteTimeout:   10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   25 * time.Second,
		SendBufferSize: 100,
		MaxMessageSize: 1 << 20,
	}
}

func NewWebSocketServerTransport(id string, conn *websocket.Conn, config WebSocketServerConfig) *WebSocketServerTransport {
	t := &WebSocketServerTransport{
		id:           id,
		conn:         conn,
		sendCh:       make(chan []byte, config.SendBufferSize),
		closeCh:      make(chan struct{}),
		writeTimeout: config.WriteTimeout,
	}

	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(config.MaxMessageSize)
	}
	if config.PongWait > 0 {
		conn.SetReadDeadline(time.Now().Add(config.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(config.PongWait))
		})
	}

	t.writeWg.Add(1)
	go t.writePump(config.PingInterval)

	return t
}

func (t *WebSocketServerTransport) writePump(pingInterval time.Duration) {
	defer t.writeWg.Done()

	var pingCh <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		pingCh = ticker.C
	}

	for {
		select {
		case <-t.closeCh:
			return
		case <-pingCh:
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				return
			}
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
			t.mu.Unlock()
			if err != nil {
				t.teardown()
				return
			}
		case message := <-t.sendCh:
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				return
			}
			if t.writeTimeout > 0 {
				t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			}
			err := t.conn.WriteMessage(websocket.TextMessage, message)
			t.mu.Unlock()
			if err != nil {
				t.teardown()
				return
			}
		}
	}
}

func (t *WebSocketServerTransport) Read() (MessageKind, []byte, error) {
	mt, message, err := t.conn.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	if mt == websocket.BinaryMessage {
		return KindBinary, message, nil
	}
	return KindText, message, nil
}

func (t *WebSocketServerTransport) Write(data []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return errors.New("transport closed")
	}

	select {
	case t.sendCh <- data:
		return nil
	default:
		go t.Close("")
		return ErrWriteBufferFull
	}
}

// teardown marks the transport closed without waiting for the write pump.
// Used from inside the pump itself, where Close would deadlock.
func (t *WebSocketServerTransport) teardown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.closeCh)
	t.mu.Unlock()
	t.conn.Close()
}

// Close sends a going-away close frame with the given reason and tears the
// connection down. Safe to call from any goroutine, any number of times.
func (t *WebSocketServerTransport) Close(reason string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.closeCh)
	t.mu.Unlock()

	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, reason),
		time.Now().Add(time.Second),
	)

	t.writeWg.Wait()
	return t.conn.Close()
}

func (t *WebSocketServerTransport) ID() string {
	return t.id
}
