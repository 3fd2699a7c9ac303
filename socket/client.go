package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gitvzz/kitHttp/socket/transport"
)

// StatusListener is notified on every connection state transition. err is nil
// when connected is true.
type StatusListener func(connected bool, err error)

// Client maintains a persistent event-framed connection to a remote endpoint.
// It reconnects automatically with a fixed delay after any transport failure;
// only Close stops it for good. Listeners and status subscriptions survive
// reconnects.
//
// Incoming frames are routed in strict arrival order: a frame whose callback
// token matches a pending one-shot listener fires and removes it; otherwise a
// persistent listener registered under the frame's event fires; otherwise the
// frame is dropped.
type Client struct {
	name string
	url  string

	reconnectDelay   time.Duration
	heartbeat        time.Duration
	handshakeTimeout time.Duration
	logger           *slog.Logger
	newTransport     func() transport.Transport

	// AfterConnect, if set, runs after every successful connect, before the
	// receive loop starts. Typical use is re-subscribing server-side state
	// that does not survive a reconnect. No inbound frames are processed
	// until the hook returns, so a blocking round-trip like EmitWithTimeout
	// must run in its own goroutine or it will only ever time out.
	AfterConnect func(c *Client)

	listener *listenerSet

	statusMu        sync.Mutex
	statusListeners []StatusListener

	mu      sync.Mutex
	tr      transport.Transport
	running bool
	closed  bool
	done    chan struct{}
}

type ClientOption func(*Client)

// WithReconnectDelay sets the fixed delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectDelay = d
	}
}

// WithHeartbeat sets the keepalive interval handed to the transport.
func WithHeartbeat(d time.Duration) ClientOption {
	return func(c *Client) {
		c.heartbeat = d
	}
}

func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTransportFactory overrides how the client builds a transport for each
// connect attempt. Mainly useful in tests.
func WithTransportFactory(factory func() transport.Transport) ClientOption {
	return func(c *Client) {
		c.newTransport = factory
	}
}

// NewClient creates a client named name that will connect to url. The name
// only identifies the client in logs.
func NewClient(name, url string, opts ...ClientOption) *Client {
	c := &Client{
		name:             name,
		url:              url,
		reconnectDelay:   2 * time.Second,
		heartbeat:        30 * time.Second,
		handshakeTimeout: 10 * time.Second,
		logger:           slog.Default(),
		listener:         newListenerSet(),
		done:             make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("client", name)

	if c.newTransport == nil {
		c.newTransport = func() transport.Transport {
			return transport.NewWebSocketTransport(
				c.url,
				transport.WithHeartbeat(c.heartbeat),
				transport.WithHandshakeTimeout(c.handshakeTimeout),
			)
		}
	}

	return c
}

func (c *Client) Name() string {
	return c.name
}

// Connected reports whether a live transport is currently attached.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr != nil
}

// On registers a persistent listener for event, replacing any existing one.
func (c *Client) On(event string, fn Listener) *Client {
	c.listener.add(event, fn, false)
	return c
}

// Un removes the listener registered under event, if any.
func (c *Client) Un(event string) *Client {
	c.listener.remove(event)
	return c
}

// AddStatusListener subscribes fn to connection state transitions.
func (c *Client) AddStatusListener(fn StatusListener) *Client {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.statusListeners = append(c.statusListeners, fn)
	return c
}

func (c *Client) notifyStatus(connected bool, err error) {
	c.statusMu.Lock()
	listeners := make([]StatusListener, len(c.statusListeners))
	copy(listeners, c.statusListeners)
	c.statusMu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("status listener panic", "panic", r)
				}
			}()
			fn(connected, err)
		}()
	}
}

// Connect runs the connect / receive / reconnect loop until Close is called
// or ctx is cancelled. Calling Connect while the loop is already running is a
// no-op. Calling it after Close returns ErrConnectionClosed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if c.running {
		c.mu.Unlock()
		c.logger.Warn("already running, ignoring connect")
		return nil
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	for {
		c.logger.Info("connecting", "url", c.url)
		tr := c.newTransport()

		if err := tr.Connect(ctx); err != nil {
			c.logger.Warn("connect failed", "error", err, "retry_in", c.reconnectDelay)
			c.notifyStatus(false, err)
		} else {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				tr.Close()
				return nil
			}
			c.tr = tr
			c.mu.Unlock()

			c.logger.Info("connected")
			c.notifyStatus(true, nil)
			if c.AfterConnect != nil {
				c.AfterConnect(c)
			}

			err := c.listen(tr)

			c.mu.Lock()
			c.tr = nil
			closed := c.closed
			c.mu.Unlock()
			tr.Close()

			if closed {
				return nil
			}
			c.logger.Info("connection lost", "error", err, "retry_in", c.reconnectDelay)
			c.notifyStatus(false, err)
		}

		select {
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

// listen consumes frames until the transport closes or errors.
func (c *Client) listen(tr transport.Transport) error {
	for {
		data, err := tr.Receive()
		if err != nil {
			return err
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.logger.Debug("dropping undecodable frame", "error", err)
		return
	}

	if f.Callback != "" {
		if fn, ok := c.listener.takeOneShot(f.Callback); ok {
			c.invoke(fn, f.Data)
			return
		}
	}

	if fn, ok := c.listener.get(f.Event); ok {
		c.invoke(fn, f.Data)
		return
	}

	c.logger.Debug("no listener for event", "event", f.Event)
}

func (c *Client) invoke(fn Listener, data interface{}) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panic", "panic", r)
		}
	}()
	fn(data)
}

// Emit sends an event frame. If callback is non-nil it is registered as a
// one-shot listener under a fresh correlation token attached to the frame, so
// the peer's correlated reply will fire it exactly once. Returns false,
// without side effects on the wire, when not connected or when the send
// fails.
func (c *Client) Emit(event string, data interface{}, callback Listener) bool {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()

	if tr == nil {
		c.logger.Warn("emit while disconnected", "event", event)
		return false
	}

	f := Frame{Event: event, Data: data}
	if callback != nil {
		f.Callback = c.listener.ask(event, callback)
	}

	raw, err := json.Marshal(f)
	if err != nil {
		c.logger.Error("emit marshal failed", "event", event, "error", err)
		return false
	}

	if err := tr.Send(raw); err != nil {
		c.logger.Error("emit send failed", "event", event, "error", err)
		return false
	}

	return true
}

// EmitWithTimeout sends an event frame and waits up to timeout for the
// correlated reply. It returns the reply payload, or nil when the send failed
// or no reply arrived in time. A reply arriving after the deadline is dropped
// like any frame without a matching listener.
func (c *Client) EmitWithTimeout(event string, data interface{}, timeout time.Duration) interface{} {
	reply := make(chan interface{}, 1)

	ok := c.Emit(event, data, func(data interface{}) {
		select {
		case reply <- data:
		default:
		}
	})
	if !ok {
		return nil
	}

	select {
	case v := <-reply:
		return v
	case <-time.After(timeout):
		c.logger.Warn("reply timeout", "event", event, "timeout", timeout)
		return nil
	}
}

// Close terminally stops the client: the receive loop ends, the transport is
// released and no reconnect is attempted. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()

	c.logger.Info("client closed")
	if tr != nil {
		return tr.Close()
	}
	return nil
}

// Run is the top-level entry point: it drives Connect and performs cleanup if
// the loop exits with an error.
func (c *Client) Run(ctx context.Context) error {
	err := c.Connect(ctx)
	if err != nil {
		c.logger.Error("client stopped", "error", err)
		c.Close()
	}
	return err
}
