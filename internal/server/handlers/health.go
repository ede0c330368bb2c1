package handlers

import (
	"net/http"
	"time"

	"github.com/tracklight/tracklight/internal/server/events"
	"github.com/tracklight/tracklight/internal/server/response"
)

// HandleHealth handles GET /healthz and GET /api/v1/health (liveness).
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "tracklight-hub",
		"version": "v1",
	})
}

// HandleReady handles GET /api/v1/ready. The hub is ready as long as it is
// accepting connections; connection counts are included for operators.
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	counts := h.bus.Registry().CountByKind()
	response.OK(w, map[string]any{
		"status":         "ready",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"connections": map[string]int{
			"duplex": counts[events.TransportDuplex],
			"stream": counts[events.TransportStream],
		},
	})
}
