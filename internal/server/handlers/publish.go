package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tracklight/tracklight/internal/server/events"
	"github.com/tracklight/tracklight/internal/server/response"
	"github.com/tracklight/tracklight/pkg/constants"
)

// publishRequest is the body of POST /api/v1/events.
type publishRequest struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"project_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// HandlePublish handles POST /api/v1/events: the HTTP producer boundary.
// Sibling services publish domain events here; in-process producers call
// Bus.Publish directly. Unknown event types are rejected at this boundary,
// never at delivery time.
func (h *Handlers) HandlePublish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxPayloadSize+1))
	if err != nil {
		response.BadRequest(w, "Failed to read request body", err.Error())
		return
	}
	if len(body) > constants.MaxPayloadSize {
		response.BadRequest(w, "Payload too large", "")
		return
	}

	var req publishRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body", err.Error())
		return
	}
	if req.Type == "" {
		response.BadRequest(w, "Missing event type", "")
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			response.BadRequest(w, "Invalid payload", err.Error())
			return
		}
	}

	seq, err := h.bus.Publish(events.EventType(req.Type), req.ProjectID, payload)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Accepted(w, map[string]any{
		"sequence": seq,
	})
}
