// Package websocket provides the duplex transport adapter: a persistent
// bidirectional channel carrying subscribe/ping control frames inbound and
// event/heartbeat frames outbound.
package websocket

import (
	"encoding/json"
	"net"
	"time"

	"github.com/agentstation/utc"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tracklight/tracklight/internal/server/events"
	"github.com/tracklight/tracklight/pkg/constants"
	"github.com/tracklight/tracklight/pkg/errors"
)

// Frame type names on the wire, client to hub.
const (
	frameSubscribe = "subscribe"
	framePing      = "ping"
)

// Frame type names on the wire, hub to client.
const (
	frameEstablished = "connection_established"
	frameConfirmed   = "subscription_confirmed"
	framePong        = "pong"
	frameHeartbeat   = "heartbeat"
	frameEvent       = "event"
	frameUnsupported = "unsupported"
)

// inboundFrame is a control message from the client.
type inboundFrame struct {
	Type       string   `json:"type"`
	EventTypes []string `json:"event_types,omitempty"`
	ProjectID  string   `json:"project_id,omitempty"`
}

// outboundFrame is a message to the client.
type outboundFrame struct {
	Type         string    `json:"type"`
	ConnectionID string    `json:"connection_id,omitempty"`
	TS           *utc.Time `json:"ts,omitempty"`
	Data         any       `json:"data,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}

// Client binds one hub connection to a WebSocket. The read pump handles
// control frames; the write pump is the connection's single writer, so no
// two writes to the socket ever run concurrently.
type Client struct {
	conn    *events.Conn
	ws      *websocket.Conn
	bus     *events.Bus
	control chan outboundFrame
	logger  *zerolog.Logger
}

// NewClient registers a duplex connection on the bus and binds it to ws.
// The connection starts with an empty subscription: the client receives
// nothing until its first subscribe frame. The connection_established frame
// is queued for the write pump to deliver first.
func NewClient(bus *events.Bus, ws *websocket.Conn, logger *zerolog.Logger) (*Client, error) {
	conn, err := bus.Connect(events.TransportDuplex, events.Subscription{})
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    conn,
		ws:      ws,
		bus:     bus,
		control: make(chan outboundFrame, 8),
		logger:  logger,
	}
	c.control <- outboundFrame{Type: frameEstablished, ConnectionID: conn.ID()}
	return c, nil
}

// ConnectionID returns the hub-assigned session identifier.
func (c *Client) ConnectionID() string { return c.conn.ID() }

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump consumes control frames until the client disconnects or the
// connection fails. Any inbound message counts as activity. Exiting the
// pump deregisters the connection; the closed Done channel then stops the
// write pump.
func (c *Client) readPump() {
	defer func() {
		c.bus.Disconnect(c.conn)
		_ = c.ws.Close()
	}()

	idle := c.bus.Options().IdleTimeout()
	c.ws.SetReadLimit(constants.MaxControlFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(idle))

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Str("connection_id", c.conn.ID()).Msg("WebSocket read error")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(idle))
		c.conn.Touch()
		c.handleFrame(data)
	}
}

// handleFrame dispatches one inbound control frame. Unknown or malformed
// frames are acknowledged as unsupported; the connection stays open.
func (c *Client) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.reply(outboundFrame{Type: frameUnsupported, Detail: "malformed frame"})
		return
	}

	switch frame.Type {
	case frameSubscribe:
		sub, err := events.NewSubscription(frame.EventTypes, frame.ProjectID)
		if err != nil {
			c.reply(outboundFrame{Type: frameUnsupported, Detail: err.Error()})
			return
		}
		if err := c.bus.UpdateSubscription(c.conn.ID(), sub); err != nil {
			c.reply(outboundFrame{Type: frameUnsupported, Detail: err.Error()})
			return
		}
		c.logger.Debug().
			Str("connection_id", c.conn.ID()).
			Strs("event_types", sub.TypeNames()).
			Str("project_id", frame.ProjectID).
			Msg("Subscription updated")
		c.reply(outboundFrame{Type: frameConfirmed, Data: map[string]any{
			"event_types": sub.TypeNames(),
			"project_id":  frame.ProjectID,
		}})

	case framePing:
		c.reply(outboundFrame{Type: framePong})

	default:
		c.reply(outboundFrame{Type: frameUnsupported, Detail: "unknown frame type: " + frame.Type})
	}
}

// reply queues a control reply without blocking the read pump. Replies are
// best effort: if the write side is hopelessly behind, dropping an ack is
// preferable to stalling inbound reads.
func (c *Client) reply(f outboundFrame) {
	select {
	case c.control <- f:
	default:
		c.logger.Warn().
			Str("connection_id", c.conn.ID()).
			Str("frame_type", f.Type).
			Msg("Control reply dropped, channel full")
	}
}

// writePump drains the connection's queue and control channel, serially.
// A heartbeat frame goes out whenever a full interval passes with no other
// write. Any write failure is connection-fatal.
func (c *Client) writePump() {
	opts := c.bus.Options()
	ticker := time.NewTicker(opts.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.bus.Disconnect(c.conn)
		_ = c.ws.Close()
	}()

	lastWrite := time.Now()
	for {
		select {
		case <-c.conn.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closing"))
			return

		case f := <-c.control:
			if !c.write(f) {
				return
			}
			lastWrite = time.Now()

		case ev := <-c.conn.Events():
			if !c.write(outboundFrame{Type: frameEvent, Data: ev}) {
				return
			}
			lastWrite = time.Now()

		case <-ticker.C:
			if time.Since(lastWrite) < opts.HeartbeatInterval {
				continue
			}
			now := utc.Now()
			if !c.write(outboundFrame{Type: frameHeartbeat, TS: &now}) {
				return
			}
			lastWrite = time.Now()
		}
	}
}

// write performs one deadline-bounded write. Returns false when the
// connection should be torn down.
func (c *Client) write(f outboundFrame) bool {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.bus.Options().WriteTimeout))
	if err := c.ws.WriteJSON(f); err != nil {
		c.logger.Warn().
			Err(writeError(c.conn.ID(), "write "+f.Type, err)).
			Str("connection_id", c.conn.ID()).
			Str("frame_type", f.Type).
			Msg("WebSocket write failed, closing connection")
		return false
	}
	c.conn.MarkSent()
	return true
}

// writeError wraps a failed socket write as a ConnectionError. A deadline
// expiry surfaces as ErrWriteTimeout so callers can match on it.
func writeError(connID, op string, err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		err = errors.ErrWriteTimeout
	}
	return errors.NewConnectionError(connID, string(events.TransportDuplex), op, err)
}
