// Package constants provides shared constants used throughout the tracklight
// codebase: hub defaults, timeouts, and limits that should be consistent
// across the application.
package constants

import "time"

// Hub defaults control the real-time event hub's delivery behavior.
const (
	// DefaultHeartbeatInterval is how often an idle connection receives a
	// heartbeat frame.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultMissedBeatsThreshold is the number of heartbeat intervals a
	// connection may stay silent before the reaper closes it.
	DefaultMissedBeatsThreshold = 3

	// DefaultQueueCapacity is the per-connection outbound queue size.
	DefaultQueueCapacity = 100

	// DefaultReplayBufferSize is the number of recent events retained per
	// project for stream reconnects.
	DefaultReplayBufferSize = 500

	// DefaultWriteTimeout bounds a single transport write. A connection
	// that cannot be written within this window is treated as failed.
	DefaultWriteTimeout = 5 * time.Second
)

// HTTP server defaults.
const (
	// DefaultHTTPReadTimeout is the timeout for reading a request.
	DefaultHTTPReadTimeout = 10 * time.Second

	// DefaultHTTPIdleTimeout is the keep-alive idle timeout.
	DefaultHTTPIdleTimeout = 120 * time.Second

	// ShutdownTimeout is how long graceful shutdown waits for in-flight
	// requests and open connections.
	ShutdownTimeout = 30 * time.Second
)

// Limit constants.
const (
	// MaxControlFrameSize caps the size of inbound duplex control frames.
	MaxControlFrameSize = 4096

	// MaxPayloadSize caps the size of a published event payload in bytes
	// when it arrives over the HTTP publish endpoint.
	MaxPayloadSize = 64 * 1024
)
