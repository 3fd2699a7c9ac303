package socket

import (
	"fmt"
	"sync"
)

// Listener handles the data payload of one inbound frame.
type Listener func(data interface{})

type listenerEntry struct {
	fn      Listener
	oneShot bool
}

// listenerSet maps event names and correlation tokens to handlers. Both kinds
// of key share one namespace, mirroring the wire protocol: a correlation
// token is just an event name the peer echoes back.
//
// Tokens are minted from a monotonically increasing counter so that two
// in-flight requests on the same event can never race to the same token,
// regardless of how many earlier entries have been removed.
type listenerSet struct {
	mu      sync.Mutex
	entries map[string]listenerEntry
	asks    uint64
}

func newListenerSet() *listenerSet {
	return &listenerSet{entries: make(map[string]listenerEntry)}
}

// add registers fn under key, silently replacing any existing handler.
func (l *listenerSet) add(key string, fn Listener, oneShot bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = listenerEntry{fn: fn, oneShot: oneShot}
}

func (l *listenerSet) remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// get returns the handler registered under key without removing it.
func (l *listenerSet) get(key string) (Listener, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// takeOneShot returns and removes the handler registered under key, but only
// if it was registered one-shot. Persistent entries are left untouched so a
// stray callback token can never unregister an application listener.
func (l *listenerSet) takeOneShot(key string) (Listener, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok || !e.oneShot {
		return nil, false
	}
	delete(l.entries, key)
	return e.fn, true
}

// ask registers fn one-shot under a fresh correlation token scoped to event
// and returns the token.
func (l *listenerSet) ask(event string, fn Listener) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	token := fmt.Sprintf("%s_ask_%d", event, l.asks)
	l.asks++
	l.entries[token] = listenerEntry{fn: fn, oneShot: true}
	return token
}

func (l *listenerSet) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
