package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tracklight/tracklight/pkg/errors"
)

// TransportKind distinguishes the two subscriber transports.
type TransportKind string

// Supported transports.
const (
	TransportDuplex TransportKind = "duplex"
	TransportStream TransportKind = "stream"
)

// State is a connection's lifecycle state.
type State int32

// Connection lifecycle states. Closed is terminal.
const (
	StateConnecting State = iota
	StateActive
	StateDraining
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn is one subscriber's session. It owns a bounded outbound queue that
// the transport's write pump drains; no other goroutine reads from it.
// Enqueueing never blocks: when the queue is full the oldest unsent event
// is evicted (drop-oldest) so memory stays bounded at queue capacity.
type Conn struct {
	id          string
	kind        TransportKind
	queue       chan Event
	done        chan struct{}
	closeOnce   sync.Once
	connectedAt time.Time

	state atomic.Int32

	mu           sync.Mutex
	sub          Subscription
	lastActivity time.Time

	sent    atomic.Int64
	dropped atomic.Int64
}

func newConn(kind TransportKind, capacity int) *Conn {
	now := time.Now()
	c := &Conn{
		id:           uuid.NewString(),
		kind:         kind,
		queue:        make(chan Event, capacity),
		done:         make(chan struct{}),
		connectedAt:  now,
		lastActivity: now,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// ID returns the per-session connection identifier.
func (c *Conn) ID() string { return c.id }

// Kind returns the connection's transport kind.
func (c *Conn) Kind() TransportKind { return c.kind }

// Events returns the outbound queue. Only the connection's own write pump
// may receive from it.
func (c *Conn) Events() <-chan Event { return c.queue }

// Done is closed when the connection is closed, by either side.
func (c *Conn) Done() <-chan struct{} { return c.done }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Closed reports whether the connection has reached its terminal state.
func (c *Conn) Closed() bool {
	return c.State() == StateClosed
}

// activate moves the connection from connecting to active. Registration
// calls this once the transport handshake has completed.
func (c *Conn) activate() {
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
}

// close transitions to closed and wakes the write pump. Safe to call more
// than once; only the first call has effect.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateDraining))
		close(c.done)
		c.state.Store(int32(StateClosed))
	})
}

// Touch records inbound activity or a successful outbound write. The reaper
// uses this timestamp to detect dead connections.
func (c *Conn) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the time of the most recent activity.
func (c *Conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// SetSubscription replaces the active subscription atomically. The
// broadcaster never observes a partially updated filter.
func (c *Conn) SetSubscription(sub Subscription) error {
	if c.Closed() {
		return errors.ErrConnectionClosed
	}
	c.mu.Lock()
	c.sub = sub
	c.lastActivity = time.Now()
	c.mu.Unlock()
	return nil
}

// Subscription returns the active subscription.
func (c *Conn) Subscription() Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

// enqueue offers an event to the outbound queue without blocking. On a
// full queue the oldest unsent event is evicted first; relative order of
// the surviving events is preserved.
func (c *Conn) enqueue(ev Event) {
	if c.Closed() {
		return
	}

	select {
	case c.queue <- ev:
		return
	default:
	}

	// Queue full: evict the oldest unsent event to make room.
	select {
	case <-c.queue:
		c.dropped.Add(1)
	default:
	}
	select {
	case c.queue <- ev:
	default:
		// Writer drained concurrently and refilled; count this one instead.
		c.dropped.Add(1)
	}
}

// MarkSent records one successful outbound write.
func (c *Conn) MarkSent() {
	c.sent.Add(1)
	c.Touch()
}

// Sent returns the number of frames successfully written.
func (c *Conn) Sent() int64 { return c.sent.Load() }

// Dropped returns the number of events evicted from the queue.
func (c *Conn) Dropped() int64 { return c.dropped.Load() }

// QueueDepth returns the number of events waiting in the queue.
func (c *Conn) QueueDepth() int { return len(c.queue) }

// ConnectedAt returns the session start time.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }
