package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tracklight/tracklight/pkg/errors"
)

// Registry tracks all live subscriber connections. It is the only hub
// structure mutated by multiple actors (producers via Broadcast, transports
// via Register/Unregister, the reaper via force-close), so every method is
// safe for concurrent use. Broadcast iterates a snapshot: it never holds
// the registry lock across a queue push, and a connection unregistered
// mid-broadcast is simply skipped.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	closed bool
	logger *zerolog.Logger

	// Totals carried over from connections that have since closed, so the
	// stats snapshot keeps counting across sessions.
	retiredSent    atomic.Int64
	retiredDropped atomic.Int64
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		logger: logger,
	}
}

// Register adds a connection and marks it active.
func (r *Registry) Register(c *Conn) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.ErrHubClosed
	}
	r.conns[c.ID()] = c
	total := len(r.conns)
	r.mu.Unlock()

	c.activate()
	r.logger.Info().
		Str("connection_id", c.ID()).
		Str("transport", string(c.Kind())).
		Int("total_connections", total).
		Msg("Connection registered")
	return nil
}

// Unregister removes a connection and closes it. Removing an unknown ID is
// a no-op so transports and the reaper can race on cleanup safely.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	total := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	r.retiredSent.Add(c.Sent())
	r.retiredDropped.Add(c.Dropped())
	r.logger.Info().
		Str("connection_id", id).
		Str("transport", string(c.Kind())).
		Int64("sent", c.Sent()).
		Int64("dropped", c.Dropped()).
		Int("total_connections", total).
		Msg("Connection unregistered")
}

// Get looks up a live connection by ID.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// UpdateSubscription atomically replaces a connection's filter.
func (r *Registry) UpdateSubscription(id string, sub Subscription) error {
	c, ok := r.Get(id)
	if !ok {
		return errors.ErrNotFound
	}
	return c.SetSubscription(sub)
}

// Broadcast offers ev to every connection whose filter matches. It never
// blocks on a slow consumer: matching connections get a non-blocking
// drop-oldest enqueue. The returned count is the number of queues the
// event was offered to.
func (r *Registry) Broadcast(ev Event) int {
	matched := 0
	for _, c := range r.snapshot() {
		if c.Closed() {
			continue
		}
		if !c.Subscription().Matches(ev) {
			continue
		}
		c.enqueue(ev)
		matched++
	}
	return matched
}

// snapshot copies the current connection set so iteration happens outside
// the lock.
func (r *Registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CountByKind returns live connection counts per transport.
func (r *Registry) CountByKind() map[TransportKind]int {
	counts := make(map[TransportKind]int, 2)
	for _, c := range r.snapshot() {
		counts[c.Kind()]++
	}
	return counts
}

// CloseAll closes every connection and refuses further registrations.
// Called once during hub shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.close()
		r.retiredSent.Add(c.Sent())
		r.retiredDropped.Add(c.Dropped())
	}
	if len(conns) > 0 {
		r.logger.Info().Int("connections", len(conns)).Msg("All connections closed")
	}
}
