package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracklight/tracklight/internal/server/events"
)

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	logger := zerolog.Nop()
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	if mutate != nil {
		mutate(&cfg)
	}

	srv := New(cfg, &logger)
	srv.Start()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, ts
}

func getJSON(t *testing.T, url string) (int, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, body
}

func TestServer_HealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/api/v1/health", "/api/v1/ready"} {
		code, body := getJSON(t, ts.URL+path)
		if code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, code)
		}
		if string(body["error"]) != "null" {
			t.Errorf("%s: unexpected error: %s", path, body["error"])
		}
	}
}

func TestServer_PublishFlowsToStream(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/v1/events", "application/json",
		strings.NewReader(`{"type":"commit","project_id":"P1","payload":{"sha":"abc123"}}`))
	if err != nil {
		t.Fatalf("POST events: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	// The published event is retained for replay.
	evs, gap := srv.Bus().Replay("P1", 0)
	if gap {
		t.Fatal("unexpected gap on a fresh hub")
	}
	if len(evs) != 1 || evs[0].Type != events.Commit {
		t.Fatalf("unexpected replay contents: %+v", evs)
	}
}

func TestServer_MethodGuards(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/v1/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on publish endpoint: expected 405, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/v1/events/stats", "application/json", nil)
	if err != nil {
		t.Fatalf("POST stats: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST on stats endpoint: expected 405, got %d", resp.StatusCode)
	}
}

func TestServer_AuthProtectsAPI(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *Config) {
		cfg.AuthEnabled = true
		cfg.APIKey = "test-key"
	})

	// Health stays public.
	code, _ := getJSON(t, ts.URL+"/healthz")
	if code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", code)
	}

	// Stats requires the key.
	code, _ = getJSON(t, ts.URL+"/api/v1/events/stats")
	if code != http.StatusUnauthorized {
		t.Errorf("stats without key: expected 401, got %d", code)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/events/stats", nil)
	req.Header.Set("X-API-Key", "test-key")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stats with key: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stats with key: expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_ShutdownClosesHub(t *testing.T) {
	logger := zerolog.Nop()
	cfg := DefaultConfig()
	srv := New(cfg, &logger)
	srv.Start()

	conn, err := srv.Bus().Connect(events.TransportStream, events.SubscribeAll(""))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("connection not closed on shutdown")
	}

	if _, err := srv.Bus().Publish(events.Commit, "", nil); err == nil {
		t.Error("expected publish to fail after shutdown")
	}
}
