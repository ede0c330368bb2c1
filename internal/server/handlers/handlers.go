// Package handlers provides HTTP request handlers for the tracklight hub
// API.
package handlers

import (
	"time"

	"github.com/gorilla/websocket"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/tracklight/tracklight/internal/server/events"
	"github.com/tracklight/tracklight/internal/server/sse"
)

// statsCacheTTL keeps repeated stats polls off the registry snapshot path.
const statsCacheTTL = 2 * time.Second

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	bus      *events.Bus
	streamer *sse.Streamer
	upgrader websocket.Upgrader
	cache    *gocache.Cache
	logger   *zerolog.Logger
	started  time.Time
}

// New creates a new Handlers instance.
func New(bus *events.Bus, streamer *sse.Streamer, upgrader websocket.Upgrader, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		bus:      bus,
		streamer: streamer,
		upgrader: upgrader,
		cache:    gocache.New(statsCacheTTL, time.Minute),
		logger:   logger,
		started:  time.Now(),
	}
}
