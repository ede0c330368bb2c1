package handlers

import (
	"net/http"

	"github.com/tracklight/tracklight/internal/server/events"
	"github.com/tracklight/tracklight/internal/server/response"
)

const statsCacheKey = "hub_stats"

// HandleStats handles GET /api/v1/events/stats: a read-only snapshot of
// hub activity. The snapshot is cached briefly so dashboard polling does
// not hammer the registry.
func (h *Handlers) HandleStats(w http.ResponseWriter, _ *http.Request) {
	if cached, ok := h.cache.Get(statsCacheKey); ok {
		response.OK(w, cached.(events.Snapshot))
		return
	}

	snap := h.bus.Snapshot()
	h.cache.SetDefault(statsCacheKey, snap)
	response.OK(w, snap)
}
