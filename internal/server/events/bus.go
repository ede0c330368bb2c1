package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentstation/utc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tracklight/tracklight/pkg/constants"
	"github.com/tracklight/tracklight/pkg/errors"
)

// Options tune the hub's delivery behavior. The zero value is not usable;
// start from DefaultOptions.
type Options struct {
	// HeartbeatInterval is the cadence of heartbeat frames on idle
	// connections and of the reaper scan.
	HeartbeatInterval time.Duration

	// MissedBeatsThreshold is how many heartbeat intervals a connection may
	// stay inactive before the reaper closes it.
	MissedBeatsThreshold int

	// QueueCapacity bounds each connection's outbound queue.
	QueueCapacity int

	// ReplayBufferSize is the per-project replay retention.
	ReplayBufferSize int

	// WriteTimeout bounds a single transport write.
	WriteTimeout time.Duration
}

// DefaultOptions returns the hub defaults.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval:    constants.DefaultHeartbeatInterval,
		MissedBeatsThreshold: constants.DefaultMissedBeatsThreshold,
		QueueCapacity:        constants.DefaultQueueCapacity,
		ReplayBufferSize:     constants.DefaultReplayBufferSize,
		WriteTimeout:         constants.DefaultWriteTimeout,
	}
}

// IdleTimeout is the inactivity window after which the reaper force-closes
// a connection.
func (o Options) IdleTimeout() time.Duration {
	return o.HeartbeatInterval * time.Duration(o.MissedBeatsThreshold)
}

// Bus is the process-wide event broadcaster. Producers call Publish
// concurrently; it assigns the next sequence, appends to the replay log,
// and offers the event to every matching connection without ever blocking
// on a consumer.
type Bus struct {
	opts     Options
	registry *Registry
	replay   *ReplayLog
	logger   *zerolog.Logger

	// pub serializes sequence assignment with the replay append and the
	// fan-out, so events reach every queue in sequence order. Enqueues
	// are non-blocking, so the section never waits on a consumer.
	pub sync.Mutex

	seq       atomic.Int64
	published atomic.Int64
	closed    atomic.Bool
}

// NewBus creates an event bus with the given options.
func NewBus(opts Options, logger *zerolog.Logger) *Bus {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = constants.DefaultHeartbeatInterval
	}
	if opts.MissedBeatsThreshold <= 0 {
		opts.MissedBeatsThreshold = constants.DefaultMissedBeatsThreshold
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = constants.DefaultQueueCapacity
	}
	if opts.ReplayBufferSize <= 0 {
		opts.ReplayBufferSize = constants.DefaultReplayBufferSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = constants.DefaultWriteTimeout
	}
	return &Bus{
		opts:     opts,
		registry: NewRegistry(logger),
		replay:   NewReplayLog(opts.ReplayBufferSize),
		logger:   logger,
	}
}

// Options returns the bus configuration. Transports read heartbeat and
// write-timeout settings from here.
func (b *Bus) Options() Options { return b.opts }

// Registry exposes the connection registry.
func (b *Bus) Registry() *Registry { return b.registry }

// Publish assigns the next sequence to a new event, records it for replay,
// and fans it out. It returns the assigned sequence. Subscriber-side
// failures never surface here: slow or broken consumers only affect their
// own connection. Safe for concurrent use by many producers.
func (b *Bus) Publish(t EventType, projectID string, payload any) (int64, error) {
	if b.closed.Load() {
		return 0, errors.ErrHubClosed
	}
	if !t.Valid() {
		return 0, errors.ErrUnknownEventType
	}

	b.pub.Lock()
	ev := Event{
		ID:        uuid.NewString(),
		Sequence:  b.seq.Add(1),
		Type:      t,
		ProjectID: projectID,
		Payload:   payload,
		Timestamp: utc.Now(),
	}
	b.replay.Append(ev)
	matched := b.registry.Broadcast(ev)
	b.published.Add(1)
	b.pub.Unlock()

	b.logger.Debug().
		Int64("sequence", ev.Sequence).
		Str("event_type", string(t)).
		Str("project_id", projectID).
		Int("matched_connections", matched).
		Msg("Event published")
	return ev.Sequence, nil
}

// Connect creates and registers a connection for a transport session.
func (b *Bus) Connect(kind TransportKind, sub Subscription) (*Conn, error) {
	if b.closed.Load() {
		return nil, errors.ErrHubClosed
	}
	c := newConn(kind, b.opts.QueueCapacity)
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	if err := b.registry.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Disconnect closes a connection and removes it from the registry. Safe to
// call from the transport, the reaper, and shutdown concurrently.
func (b *Bus) Disconnect(c *Conn) {
	b.registry.Unregister(c.ID())
}

// UpdateSubscription atomically replaces a connection's filter.
func (b *Bus) UpdateSubscription(id string, sub Subscription) error {
	return b.registry.UpdateSubscription(id, sub)
}

// Replay returns the retained events after the given sequence for a stream
// resume, or gap=true when retention no longer covers the request.
func (b *Bus) Replay(projectID string, after int64) ([]Event, bool) {
	return b.replay.Since(projectID, after)
}

// OldestRetained reports where continuous replay history starts.
func (b *Bus) OldestRetained(projectID string) int64 {
	return b.replay.OldestRetained(projectID)
}

// LastSequence returns the most recently assigned sequence number.
func (b *Bus) LastSequence() int64 { return b.seq.Load() }

// Run owns the hub's background reaper. It scans the registry once per
// heartbeat interval and force-closes connections whose last activity is
// older than the idle timeout. Run returns when ctx is cancelled, after
// closing every connection; the bus rejects publishes from then on.
func (b *Bus) Run(ctx context.Context) {
	ticker := time.NewTicker(b.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.closed.Store(true)
			b.registry.CloseAll()
			b.logger.Info().Msg("Event hub shut down")
			return
		case <-ticker.C:
			b.reap()
		}
	}
}

// reap closes connections that have been inactive past the idle timeout.
func (b *Bus) reap() {
	cutoff := time.Now().Add(-b.opts.IdleTimeout())
	for _, c := range b.registry.snapshot() {
		if c.LastActivity().After(cutoff) {
			continue
		}
		b.logger.Warn().
			Str("connection_id", c.ID()).
			Str("transport", string(c.Kind())).
			Time("last_activity", c.LastActivity()).
			Msg("Reaping idle connection")
		b.Disconnect(c)
	}
}
