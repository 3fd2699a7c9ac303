package socket_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvzz/kitHttp/socket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newTestServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws://" + strings.TrimPrefix(httpURL, "http://")
}

// blockUntilClosed keeps the server side open without sending anything.
func blockUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newTestClient(t *testing.T, url string, opts ...socket.ClientOption) *socket.Client {
	t.Helper()
	opts = append([]socket.ClientOption{
		socket.WithReconnectDelay(50 * time.Millisecond),
		socket.WithHandshakeTimeout(time.Second),
	}, opts...)
	c := socket.NewClient(t.Name(), url, opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

// startAndWait runs the connect loop and blocks until the first successful
// connection.
func startAndWait(t *testing.T, c *socket.Client) {
	t.Helper()
	connected := make(chan struct{}, 1)
	c.AddStatusListener(func(ok bool, err error) {
		if ok {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	go c.Connect(context.Background())
	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not connect")
	}
}

func TestEmitWhileDisconnected(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:1/chat")

	ok := c.Emit("chat", "hello", nil)
	assert.False(t, ok)
	assert.False(t, c.Connected())
}

func TestConnectIsIdempotent(t *testing.T) {
	srv := newTestServer(t, blockUntilClosed)
	c := newTestClient(t, wsURL(srv.URL))

	startAndWait(t, c)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err, "second connect must be a no-op")
	case <-time.After(time.Second):
		t.Fatal("second connect did not return immediately")
	}
	assert.True(t, c.Connected())
}

func TestEmitWithTimeoutReceivesCorrelatedReply(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f socket.Frame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			reply := socket.Frame{Event: f.Event, Data: "hi-back", Callback: f.Callback}
			out, _ := json.Marshal(reply)
			conn.WriteMessage(websocket.TextMessage, out)
		}
	})
	c := newTestClient(t, wsURL(srv.URL))
	startAndWait(t, c)

	reply := c.EmitWithTimeout("echo", "hi", 2*time.Second)
	assert.Equal(t, "hi-back", reply)
}

func TestEmitWithTimeoutReturnsNilOnTimeout(t *testing.T) {
	srv := newTestServer(t, blockUntilClosed)
	c := newTestClient(t, wsURL(srv.URL))
	startAndWait(t, c)

	start := time.Now()
	reply := c.EmitWithTimeout("echo", "hi", 100*time.Millisecond)
	assert.Nil(t, reply)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestDuplicateCorrelatedReplyIsDropped(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f socket.Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out, _ := json.Marshal(socket.Frame{Event: f.Event, Data: "pong", Callback: f.Callback})
		conn.WriteMessage(websocket.TextMessage, out)
		conn.WriteMessage(websocket.TextMessage, out)
		blockUntilClosed(conn)
	})
	c := newTestClient(t, wsURL(srv.URL))
	startAndWait(t, c)

	var mu sync.Mutex
	calls := 0
	ok := c.Emit("ping", nil, func(data interface{}) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.True(t, ok)

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "one-shot listener fired more than once")
}

func TestPersistentListenerReceivesEveryEvent(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			out, _ := json.Marshal(socket.Frame{Event: "news", Data: float64(i)})
			conn.WriteMessage(websocket.TextMessage, out)
		}
		blockUntilClosed(conn)
	})

	received := make(chan interface{}, 3)
	c := newTestClient(t, wsURL(srv.URL))
	c.On("news", func(data interface{}) { received <- data })
	startAndWait(t, c)

	for i := 0; i < 3; i++ {
		select {
		case data := <-received:
			assert.Equal(t, float64(i), data, "events must arrive in order")
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d never arrived", i)
		}
	}
}

func TestReconnectAfterFailedAttempts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	type status struct {
		connected bool
		at        time.Time
	}
	statuses := make(chan status, 16)

	delay := 50 * time.Millisecond
	c := newTestClient(t, "ws://"+addr+"/chat", socket.WithReconnectDelay(delay))
	c.AddStatusListener(func(ok bool, err error) {
		if !ok {
			assert.Error(t, err)
		}
		statuses <- status{connected: ok, at: time.Now()}
	})

	go c.Connect(context.Background())

	var failures []status
	for len(failures) < 2 {
		select {
		case s := <-statuses:
			require.False(t, s.connected, "must not connect before the server exists")
			failures = append(failures, s)
		case <-time.After(3 * time.Second):
			t.Fatal("expected two failed attempts")
		}
	}
	assert.GreaterOrEqual(t, failures[1].at.Sub(failures[0].at), delay)

	ln2, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		blockUntilClosed(conn)
	})}
	go srv.Serve(ln2)
	t.Cleanup(func() { srv.Close() })

	select {
	case s := <-statuses:
		assert.True(t, s.connected, "expected a successful attempt after the server came up")
	case <-time.After(3 * time.Second):
		t.Fatal("client never connected")
	}
}

func TestStatusListenerPanicDoesNotBreakOthers(t *testing.T) {
	srv := newTestServer(t, blockUntilClosed)
	c := newTestClient(t, wsURL(srv.URL))

	c.AddStatusListener(func(ok bool, err error) { panic("boom") })
	notified := make(chan bool, 1)
	c.AddStatusListener(func(ok bool, err error) {
		select {
		case notified <- ok:
		default:
		}
	})

	go c.Connect(context.Background())

	select {
	case ok := <-notified:
		assert.True(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("listener after the panicking one was never invoked")
	}
}

func TestAfterConnectHookRunsOnConnect(t *testing.T) {
	srv := newTestServer(t, blockUntilClosed)
	c := newTestClient(t, wsURL(srv.URL))

	hooked := make(chan struct{}, 1)
	c.AfterConnect = func(c *socket.Client) {
		assert.True(t, c.Connected())
		select {
		case hooked <- struct{}{}:
		default:
		}
	}

	go c.Connect(context.Background())

	select {
	case <-hooked:
	case <-time.After(3 * time.Second):
		t.Fatal("AfterConnect never ran")
	}
}

func TestRequestFromAfterConnectHook(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f socket.Frame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			out, _ := json.Marshal(socket.Frame{
				Event:    f.Event,
				Data:     fmt.Sprintf("%v-back", f.Data),
				Callback: f.Callback,
			})
			conn.WriteMessage(websocket.TextMessage, out)
		}
	})
	c := newTestClient(t, wsURL(srv.URL))

	reply := make(chan interface{}, 1)
	c.AfterConnect = func(c *socket.Client) {
		// The receive loop starts only after this hook returns; a blocking
		// wait here would starve its own reply.
		go func() { reply <- c.EmitWithTimeout("greet", "hello", 2*time.Second) }()
	}

	go c.Connect(context.Background())

	select {
	case v := <-reply:
		assert.Equal(t, "hello-back", v)
	case <-time.After(3 * time.Second):
		t.Fatal("round-trip started from the hook never completed")
	}
}

func TestCloseIsTerminal(t *testing.T) {
	srv := newTestServer(t, blockUntilClosed)
	c := newTestClient(t, wsURL(srv.URL))
	startAndWait(t, c)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close(), "close must be idempotent")

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, socket.ErrConnectionClosed)
	assert.False(t, c.Connected())
}
