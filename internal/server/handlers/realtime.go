package handlers

import (
	"net/http"

	ws "github.com/tracklight/tracklight/internal/server/websocket"
)

// HandleDuplex handles GET /api/v1/events/live: upgrades the request to a
// WebSocket and binds it to a hub connection. The client receives a
// connection_established frame, then nothing until it subscribes.
func (h *Handlers) HandleDuplex(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client, err := ws.NewClient(h.bus, conn, h.logger)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to register duplex connection")
		_ = conn.Close()
		return
	}

	h.logger.Debug().
		Str("connection_id", client.ConnectionID()).
		Str("remote_addr", r.RemoteAddr).
		Msg("Duplex client connected")
	client.Start()
}

// HandleStream handles GET /api/v1/events/stream: a one-way SSE session
// with optional resume via Last-Event-Id.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	h.streamer.ServeHTTP(w, r)
}
