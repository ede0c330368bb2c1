package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tracklight/tracklight/internal/server/events"
	"github.com/tracklight/tracklight/internal/server/sse"
	"github.com/tracklight/tracklight/pkg/constants"
)

func newTestHandlers(t *testing.T) (*events.Bus, *Handlers) {
	t.Helper()
	logger := zerolog.Nop()
	bus := events.NewBus(events.DefaultOptions(), &logger)
	streamer := sse.NewStreamer(bus, &logger)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return bus, New(bus, streamer, upgrader, &logger)
}

// envelope mirrors the response body shape.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response body: %v", err)
	}
	return env
}

func TestHandlePublish(t *testing.T) {
	bus, h := newTestHandlers(t)

	body := `{"type":"task_update","project_id":"P1","payload":{"task":"t-1","status":"done"}}`
	rec := httptest.NewRecorder()
	h.HandlePublish(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var data struct {
		Sequence int64 `json:"sequence"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", data.Sequence)
	}
	if bus.LastSequence() != 1 {
		t.Errorf("expected bus sequence 1, got %d", bus.LastSequence())
	}
}

func TestHandlePublish_Rejections(t *testing.T) {
	_, h := newTestHandlers(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"unknown type", `{"type":"teleport"}`, http.StatusBadRequest},
		{"missing type", `{"project_id":"P1"}`, http.StatusBadRequest},
		{"malformed json", `{nope`, http.StatusBadRequest},
		{"malformed payload", `{"type":"commit","payload":}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandlePublish(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(tt.body)))
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandlePublish_RejectedTypeConsumesNoSequence(t *testing.T) {
	bus, h := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.HandlePublish(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"type":"bogus"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != "UNKNOWN_EVENT_TYPE" {
		t.Errorf("expected UNKNOWN_EVENT_TYPE, got %+v", env.Error)
	}
	if bus.LastSequence() != 0 {
		t.Errorf("rejected publish consumed sequence %d", bus.LastSequence())
	}
}

func TestHandlePublish_PayloadTooLarge(t *testing.T) {
	_, h := newTestHandlers(t)

	big := bytes.Repeat([]byte("x"), constants.MaxPayloadSize+10)
	rec := httptest.NewRecorder()
	h.HandlePublish(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(big)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized body, got %d", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	bus, h := newTestHandlers(t)

	if _, err := bus.Publish(events.Commit, "P1", nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	env := decodeEnvelope(t, rec)
	var snap events.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("data: %v", err)
	}
	if snap.EventsPublished != 1 || snap.LastSequence != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	// Cached within the TTL: a publish right after is not reflected yet.
	if _, err := bus.Publish(events.Commit, "P1", nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	rec = httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/stats", nil))
	env = decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("data: %v", err)
	}
	if snap.EventsPublished != 1 {
		t.Errorf("expected cached snapshot, got %+v", snap)
	}
}

func TestHandleHealth(t *testing.T) {
	_, h := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", data["status"])
	}
}

func TestHandleReady(t *testing.T) {
	bus, h := newTestHandlers(t)

	if _, err := bus.Connect(events.TransportDuplex, events.SubscribeAll("")); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	rec := httptest.NewRecorder()
	h.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var data struct {
		Status      string         `json:"status"`
		Connections map[string]int `json:"connections"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data.Status != "ready" {
		t.Errorf("expected ready, got %q", data.Status)
	}
	if data.Connections["duplex"] != 1 || data.Connections["stream"] != 0 {
		t.Errorf("unexpected connection counts: %+v", data.Connections)
	}
}

func TestHandleDuplex_RequiresUpgrade(t *testing.T) {
	_, h := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.HandleDuplex(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/live", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for plain HTTP request, got %d", rec.Code)
	}
}
