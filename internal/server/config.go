package server

import (
	"time"

	"github.com/tracklight/tracklight/internal/server/events"
	"github.com/tracklight/tracklight/pkg/constants"
)

// Config holds hub server configuration.
type Config struct {
	// Server settings
	Host       string
	Port       int
	PathPrefix string

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// Authentication settings
	AuthEnabled bool
	AuthHeader  string
	APIKey      string

	// RateLimit is requests per minute per IP (0 to disable). Realtime
	// endpoints are always exempt.
	RateLimit int

	// HTTP timeouts. There is no write timeout: the realtime endpoints
	// hold their responses open indefinitely and bound individual writes
	// themselves.
	ReadTimeout time.Duration
	IdleTimeout time.Duration

	// Hub holds the event hub delivery options.
	Hub events.Options
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        8080,
		PathPrefix:  "/api/v1",
		CORSEnabled: false,
		CORSOrigins: []string{},
		AuthEnabled: false,
		AuthHeader:  "X-API-Key",
		RateLimit:   100,
		ReadTimeout: constants.DefaultHTTPReadTimeout,
		IdleTimeout: constants.DefaultHTTPIdleTimeout,
		Hub:         events.DefaultOptions(),
	}
}
