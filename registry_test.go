package kithttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvzz/kitHttp/socket"
	"github.com/gitvzz/kitHttp/socket/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeTransport records written frames; broadcast tests never read.
type fakeTransport struct {
	id      string
	failing bool

	mu     sync.Mutex
	frames []socket.Frame
}

func (f *fakeTransport) Read() (transport.MessageKind, []byte, error) {
	return 0, nil, errors.New("not readable")
}

func (f *fakeTransport) Write(data []byte) error {
	if f.failing {
		return errors.New("peer gone")
	}
	var frame socket.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeTransport) Close(reason string) error { return nil }
func (f *fakeTransport) ID() string                { return f.id }

func (f *fakeTransport) sent() []socket.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]socket.Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func addFakeConn(k *KitHttp, id string, failing bool) *fakeTransport {
	tr := &fakeTransport{id: id, failing: failing}
	k.conns.add(newConn(id, tr, k.logger))
	return tr
}

func TestRegistryAddRemove(t *testing.T) {
	r := newConnRegistry()
	c := newConn("42", &fakeTransport{id: "42"}, testLogger())

	r.add(c)
	got, ok := r.get("42")
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, r.len())

	r.remove("42")
	_, ok = r.get("42")
	assert.False(t, ok)
	assert.Equal(t, 0, r.len())

	// Removing an unknown id is harmless.
	r.remove("42")
}

func TestBroadcastSurvivesFailingConnection(t *testing.T) {
	k := New(nil, WithLogger(testLogger()))

	healthy1 := addFakeConn(k, "1", false)
	addFakeConn(k, "2", true)
	healthy3 := addFakeConn(k, "3", false)

	k.Broadcast("notice", "hello", nil)

	for _, tr := range []*fakeTransport{healthy1, healthy3} {
		frames := tr.sent()
		require.Len(t, frames, 1, "conn %s missed the broadcast", tr.id)
		assert.Equal(t, "notice", frames[0].Event)
		assert.Equal(t, "hello", frames[0].Data)
		assert.Empty(t, frames[0].Callback, "broadcast frames are uncorrelated")
	}
}

func TestBroadcastFilter(t *testing.T) {
	k := New(nil, WithLogger(testLogger()))

	one := addFakeConn(k, "1", false)
	two := addFakeConn(k, "2", false)

	k.Broadcast("notice", "vip only", func(c *Conn) bool { return c.ID() == "2" })

	assert.Empty(t, one.sent())
	require.Len(t, two.sent(), 1)
	assert.Equal(t, "vip only", two.sent()[0].Data)
}
