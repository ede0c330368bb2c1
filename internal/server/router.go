package server

import (
	"net/http"

	"github.com/tracklight/tracklight/internal/server/handlers"
	"github.com/tracklight/tracklight/internal/server/middleware"
	"github.com/tracklight/tracklight/internal/server/response"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(s.bus, s.streamer, s.upgrader, s.logger)
	s.registerRoutes(mux, h)

	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Public health endpoints (no auth required)
	mux.HandleFunc("/healthz", h.HandleHealth)
	mux.HandleFunc(prefix+"/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/ready", h.HandleReady)

	// Producer boundary
	mux.HandleFunc(prefix+"/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			response.MethodNotAllowed(w, r.Method)
			return
		}
		h.HandlePublish(w, r)
	})

	// Realtime endpoints
	mux.HandleFunc(prefix+"/events/live", h.HandleDuplex)
	mux.HandleFunc(prefix+"/events/stream", h.HandleStream)

	// Operational visibility
	mux.HandleFunc(prefix+"/events/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			response.MethodNotAllowed(w, r.Method)
			return
		}
		h.HandleStats(w, r)
	})
}

// applyMiddleware wraps handler with the middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	if cfg.RateLimit > 0 {
		exempt := []string{
			cfg.PathPrefix + "/events/live",
			cfg.PathPrefix + "/events/stream",
		}
		rl := middleware.NewRateLimiter(cfg.RateLimit, exempt, s.logger)
		handler = middleware.RateLimit(rl)(handler)
	}

	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig()
		authConfig.Enabled = true
		authConfig.HeaderName = cfg.AuthHeader
		if cfg.APIKey != "" {
			authConfig.APIKey = cfg.APIKey
		}
		handler = middleware.Auth(authConfig, s.logger)(handler)
	}

	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
		} else {
			corsConfig.AllowAll = true
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	handler = middleware.Logger(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}
