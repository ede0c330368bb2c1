// Package sse provides the stream transport adapter: a long-lived, one-way
// Server-Sent Events response with resume-from-last-event semantics. The
// adapter never reads application data from the client; the connection ends
// on write failure, idle reaping, or the client severing the request.
package sse

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/utc"
	"github.com/rs/zerolog"

	"github.com/tracklight/tracklight/internal/server/events"
	"github.com/tracklight/tracklight/internal/server/response"
	"github.com/tracklight/tracklight/pkg/errors"
)

// Streamer serves SSE connections backed by the event hub.
type Streamer struct {
	bus    *events.Bus
	logger *zerolog.Logger
}

// NewStreamer creates an SSE streamer.
func NewStreamer(bus *events.Bus, logger *zerolog.Logger) *Streamer {
	return &Streamer{bus: bus, logger: logger}
}

// ServeHTTP handles one stream session. Query parameters: event_types
// (comma-separated, default all), project_id, last_event_id (also accepted
// as the Last-Event-Id header). When a resume point is given and retention
// still covers it, every matching buffered event after it is delivered in
// sequence order before live delivery begins; otherwise a gap frame tells
// the client its view may be stale.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	sub, err := parseSubscription(r.URL.Query().Get("event_types"), projectID)
	if err != nil {
		response.BadRequest(w, "Invalid event_types filter", err.Error())
		return
	}

	lastEventID, resume, err := parseLastEventID(r)
	if err != nil {
		response.BadRequest(w, "Invalid last_event_id", err.Error())
		return
	}

	// Register before replaying so events published during replay queue up
	// rather than getting lost.
	conn, err := s.bus.Connect(events.TransportStream, sub)
	if err != nil {
		response.ServiceUnavailable(w, "Event hub is shutting down")
		return
	}
	defer s.bus.Disconnect(conn)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	st := &stream{
		conn:    conn,
		w:       w,
		rc:      http.NewResponseController(w),
		timeout: s.bus.Options().WriteTimeout,
		logger:  s.logger,
	}

	if !st.comment("connected connection_id=" + conn.ID()) {
		return
	}

	// maxReplayed guards the replay-to-live handoff: a live event queued
	// while replay was running is skipped if replay already delivered it.
	// An explicit last_event_id=0 resumes from the start of retention.
	var maxReplayed int64
	if resume {
		maxReplayed = s.replay(st, lastEventID, projectID, sub)
		if maxReplayed < 0 {
			return
		}
	}

	s.live(r, st, maxReplayed)
}

// replay writes the buffered history after the resume point, or a gap frame
// when retention no longer covers it. Returns the highest replayed sequence,
// or -1 on write failure.
func (s *Streamer) replay(st *stream, after int64, projectID string, sub events.Subscription) int64 {
	buffered, gap := s.bus.Replay(projectID, after)
	if gap {
		payload, _ := json.Marshal(map[string]any{
			"requested_after":  after,
			"oldest_available": s.bus.OldestRetained(projectID),
			"last_sequence":    s.bus.LastSequence(),
		})
		s.logger.Info().
			Str("connection_id", st.conn.ID()).
			Int64("requested_after", after).
			Msg("Replay gap, resume point outside retention")
		if !st.frame("gap", 0, payload) {
			return -1
		}
		return 0
	}

	replayed := after
	for _, ev := range buffered {
		if !sub.Matches(ev) {
			continue
		}
		if !st.event(ev) {
			return -1
		}
		replayed = ev.Sequence
	}
	return replayed
}

// live delivers queued events until the client or hub ends the session,
// interleaving comment heartbeats on the configured cadence.
func (s *Streamer) live(r *http.Request, st *stream, maxReplayed int64) {
	interval := s.bus.Options().HeartbeatInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastWrite := time.Now()
	for {
		select {
		case <-r.Context().Done():
			return

		case <-st.conn.Done():
			return

		case ev := <-st.conn.Events():
			if ev.Sequence <= maxReplayed {
				continue
			}
			if !st.event(ev) {
				return
			}
			lastWrite = time.Now()

		case <-ticker.C:
			if time.Since(lastWrite) < interval {
				continue
			}
			ts := utc.Now()
			if !st.comment("heartbeat " + ts.String()) {
				return
			}
			lastWrite = time.Now()
		}
	}
}

// stream owns the serialized writes of one SSE session.
type stream struct {
	conn    *events.Conn
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
	logger  *zerolog.Logger
}

// event writes one event frame tagged with its sequence as the SSE id, so
// the client can resume from it later.
func (st *stream) event(ev events.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		st.logger.Error().Err(err).
			Str("connection_id", st.conn.ID()).
			Int64("sequence", ev.Sequence).
			Msg("Failed to marshal event")
		return true
	}
	return st.frame(string(ev.Type), ev.Sequence, data)
}

// frame writes a complete SSE frame and flushes it.
func (st *stream) frame(name string, id int64, data []byte) bool {
	_ = st.rc.SetWriteDeadline(time.Now().Add(st.timeout))
	if id > 0 {
		_, _ = fmt.Fprintf(st.w, "id: %d\n", id)
	}
	_, _ = fmt.Fprintf(st.w, "event: %s\n", name)
	if _, err := fmt.Fprintf(st.w, "data: %s\n\n", data); err != nil {
		st.fail("write "+name, err)
		return false
	}
	if err := st.rc.Flush(); err != nil {
		st.fail("flush "+name, err)
		return false
	}
	st.conn.MarkSent()
	return true
}

// comment writes a no-op comment frame. Keeps intermediaries from closing
// the connection without the client seeing an event.
func (st *stream) comment(text string) bool {
	_ = st.rc.SetWriteDeadline(time.Now().Add(st.timeout))
	if _, err := fmt.Fprintf(st.w, ": %s\n\n", text); err != nil {
		st.fail("write comment", err)
		return false
	}
	if err := st.rc.Flush(); err != nil {
		st.fail("flush comment", err)
		return false
	}
	st.conn.Touch()
	return true
}

func (st *stream) fail(op string, err error) {
	st.logger.Warn().
		Err(writeError(st.conn.ID(), op, err)).
		Str("connection_id", st.conn.ID()).
		Msg("Stream write failed, closing connection")
}

// writeError wraps a failed stream write as a ConnectionError. A deadline
// expiry surfaces as ErrWriteTimeout so callers can match on it.
func writeError(connID, op string, err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		err = errors.ErrWriteTimeout
	}
	return errors.NewConnectionError(connID, string(events.TransportStream), op, err)
}

// parseSubscription builds the session filter from the query. An absent
// event_types filter means all types.
func parseSubscription(typesParam, projectID string) (events.Subscription, error) {
	if strings.TrimSpace(typesParam) == "" {
		return events.SubscribeAll(projectID), nil
	}
	return events.NewSubscription(strings.Split(typesParam, ","), projectID)
}

// parseLastEventID reads the resume point from the Last-Event-Id header or
// the last_event_id query parameter. resume is false when neither is set;
// an explicit 0 is a valid resume point meaning "everything retained".
func parseLastEventID(r *http.Request) (id int64, resume bool, err error) {
	raw := r.Header.Get("Last-Event-Id")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	if raw == "" {
		return 0, false, nil
	}
	id, err = strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, false, fmt.Errorf("last_event_id must be a non-negative integer, got %q", raw)
	}
	return id, true, nil
}
