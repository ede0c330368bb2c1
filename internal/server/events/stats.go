package events

import "time"

// Snapshot is a point-in-time view of hub activity for the stats endpoint.
// Counters are collected from per-connection atomics; building a snapshot
// takes no lock on the broadcast path.
type Snapshot struct {
	ActiveConnections int            `json:"active_connections"`
	ConnectionsByKind map[string]int `json:"connections_by_kind"`
	EventsPublished   int64          `json:"events_published"`
	LastSequence      int64          `json:"last_sequence"`
	TotalSent         int64          `json:"total_sent"`
	TotalDropped      int64          `json:"total_dropped"`
	Connections       []ConnSnapshot `json:"connections"`
}

// ConnSnapshot is one connection's stats.
type ConnSnapshot struct {
	ID            string   `json:"id"`
	Transport     string   `json:"transport"`
	State         string   `json:"state"`
	Subscription  []string `json:"subscription,omitempty"`
	ProjectFilter string   `json:"project_filter,omitempty"`
	Sent          int64    `json:"sent"`
	Dropped       int64    `json:"dropped"`
	QueueDepth    int      `json:"queue_depth"`
	AgeSeconds    float64  `json:"age_seconds"`
}

// Snapshot collects current hub statistics.
func (b *Bus) Snapshot() Snapshot {
	conns := b.registry.snapshot()
	now := time.Now()

	snap := Snapshot{
		ActiveConnections: len(conns),
		ConnectionsByKind: make(map[string]int, 2),
		EventsPublished:   b.published.Load(),
		LastSequence:      b.seq.Load(),
		TotalSent:         b.registry.retiredSent.Load(),
		TotalDropped:      b.registry.retiredDropped.Load(),
		Connections:       make([]ConnSnapshot, 0, len(conns)),
	}
	for _, c := range conns {
		sub := c.Subscription()
		cs := ConnSnapshot{
			ID:            c.ID(),
			Transport:     string(c.Kind()),
			State:         c.State().String(),
			ProjectFilter: sub.ProjectID,
			Sent:          c.Sent(),
			Dropped:       c.Dropped(),
			QueueDepth:    c.QueueDepth(),
			AgeSeconds:    now.Sub(c.ConnectedAt()).Seconds(),
		}
		if !sub.Empty() {
			cs.Subscription = sub.TypeNames()
		}
		snap.ConnectionsByKind[string(c.Kind())]++
		snap.TotalSent += cs.Sent
		snap.TotalDropped += cs.Dropped
		snap.Connections = append(snap.Connections, cs)
	}
	return snap
}
