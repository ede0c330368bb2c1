// Package events implements the real-time event distribution hub.
//
// The hub accepts domain events from in-process producers (file watcher,
// commit scanner, progress/risk recalculation, task updates) and fans them
// out to remote subscribers over two transports: a duplex WebSocket channel
// and a one-way SSE stream. Producers publish through the Bus; transports
// attach through Conn. The package has no knowledge of HTTP or sockets.
package events

import (
	"strings"

	"github.com/agentstation/utc"

	"github.com/tracklight/tracklight/pkg/errors"
)

// EventType identifies the kind of domain event. The set is closed:
// unknown types are rejected at the publish boundary.
type EventType string

// Event types emitted by tracklight producers.
const (
	FileChange      EventType = "file_change"
	Commit          EventType = "commit"
	ProgressUpdate  EventType = "progress_update"
	RiskAlert       EventType = "risk_alert"
	TaskUpdate      EventType = "task_update"
	SystemStatus    EventType = "system_status"
	DashboardUpdate EventType = "dashboard_update"
	HealthCheck     EventType = "health_check"
)

// WildcardType subscribes a connection to every event type.
const WildcardType = "all"

// Types lists every valid event type.
var Types = []EventType{
	FileChange,
	Commit,
	ProgressUpdate,
	RiskAlert,
	TaskUpdate,
	SystemStatus,
	DashboardUpdate,
	HealthCheck,
}

// Valid reports whether t is a member of the closed event-type set.
func (t EventType) Valid() bool {
	switch t {
	case FileChange, Commit, ProgressUpdate, RiskAlert, TaskUpdate,
		SystemStatus, DashboardUpdate, HealthCheck:
		return true
	}
	return false
}

// Event is an immutable fact with a bus-assigned sequence number. Once
// published an event is never mutated or re-sequenced.
type Event struct {
	ID        string    `json:"id"`
	Sequence  int64     `json:"sequence"`
	Type      EventType `json:"type"`
	ProjectID string    `json:"project_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp utc.Time  `json:"timestamp"`
}

// Subscription is a connection's delivery filter. The zero value matches
// nothing: a freshly connected duplex client receives no events until its
// first subscribe message.
type Subscription struct {
	// All matches every event type.
	All bool

	// Types is the set of event types of interest when All is false.
	Types map[EventType]struct{}

	// ProjectID, when set, restricts delivery to events scoped to that
	// project. Unscoped events pass the filter regardless.
	ProjectID string
}

// NewSubscription builds a Subscription from raw type names. The wildcard
// "all" (or "*") matches every type. Unknown type names are rejected.
func NewSubscription(typeNames []string, projectID string) (Subscription, error) {
	if len(typeNames) == 0 {
		return Subscription{}, errors.ErrEmptySubscription
	}

	sub := Subscription{ProjectID: projectID}
	for _, name := range typeNames {
		name = strings.TrimSpace(name)
		if name == WildcardType || name == "*" {
			sub.All = true
			sub.Types = nil
			return sub, nil
		}
		t := EventType(name)
		if !t.Valid() {
			return Subscription{}, errors.NewValidationError("event_types", name, "unknown event type")
		}
		if sub.Types == nil {
			sub.Types = make(map[EventType]struct{}, len(typeNames))
		}
		sub.Types[t] = struct{}{}
	}
	return sub, nil
}

// SubscribeAll returns a subscription matching every event type, optionally
// scoped to one project. Stream clients that supply no event_types filter
// get this.
func SubscribeAll(projectID string) Subscription {
	return Subscription{All: true, ProjectID: projectID}
}

// Empty reports whether the subscription matches nothing.
func (s Subscription) Empty() bool {
	return !s.All && len(s.Types) == 0
}

// Matches reports whether ev passes the filter: the event's type must be
// of interest, and a project-scoped filter admits events for that project
// plus unscoped events.
func (s Subscription) Matches(ev Event) bool {
	if !s.All {
		if _, ok := s.Types[ev.Type]; !ok {
			return false
		}
	}
	if s.ProjectID != "" && ev.ProjectID != "" && ev.ProjectID != s.ProjectID {
		return false
	}
	return true
}

// TypeNames returns the subscribed type names, with "all" for a wildcard
// subscription. Used in confirmation frames and stats output.
func (s Subscription) TypeNames() []string {
	if s.All {
		return []string{WildcardType}
	}
	names := make([]string, 0, len(s.Types))
	for _, t := range Types {
		if _, ok := s.Types[t]; ok {
			names = append(names, string(t))
		}
	}
	return names
}
