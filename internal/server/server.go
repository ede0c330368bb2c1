// Package server provides the HTTP server hosting the tracklight event hub.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tracklight/tracklight/internal/server/events"
	"github.com/tracklight/tracklight/internal/server/sse"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	bus       *events.Bus
	streamer  *sse.Streamer
	upgrader  websocket.Upgrader
	logger    *zerolog.Logger
	config    Config
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// New creates a server instance with the given configuration.
func New(cfg Config, logger *zerolog.Logger) *Server {
	bus := events.NewBus(cfg.Hub, logger)
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		bus:      bus,
		streamer: sse.NewStreamer(bus, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Credential checks happen in the auth middleware; origin
				// policy is handled by CORS configuration.
				return true
			},
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Start launches the hub's background reaper. Call once before serving.
func (s *Server) Start() {
	go s.bus.Run(s.ctx)
	s.logger.Info().
		Dur("heartbeat_interval", s.config.Hub.HeartbeatInterval).
		Int("queue_capacity", s.config.Hub.QueueCapacity).
		Int("replay_buffer_size", s.config.Hub.ReplayBufferSize).
		Msg("Event hub started")
}

// Handler returns the configured http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Bus returns the event bus for in-process producers.
func (s *Server) Bus() *events.Bus {
	return s.bus
}

// Shutdown closes all hub connections and stops background services. In
// flight heartbeats are skipped; clients are expected to reconnect.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down event hub")
	s.cancel()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		// The reaper loop observes cancellation and closes the registry.
	}
	return nil
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
