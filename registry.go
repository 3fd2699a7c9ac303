package kithttp

import "sync"

// connRegistry tracks live connections by id. It is shared across every
// connection's receive loop, so all access goes through the lock. Removal is
// always explicit: the receive loop that inserted a connection removes it on
// the way out.
type connRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func newConnRegistry() *connRegistry {
	return &connRegistry{conns: make(map[string]*Conn)}
}

func (r *connRegistry) add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

func (r *connRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *connRegistry) get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// snapshot returns the current connections; broadcast iterates the copy so
// sends never run under the registry lock.
func (r *connRegistry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *connRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
