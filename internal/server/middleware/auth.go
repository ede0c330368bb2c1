package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// AuthConfig holds API-key authentication configuration. Credential
// validation happens here, at the transport-accept boundary, before a
// realtime connection is registered; per-project event filtering is
// delivery scoping, not access control.
type AuthConfig struct {
	Enabled     bool
	APIKey      string
	HeaderName  string
	PublicPaths []string
}

// DefaultAuthConfig returns default authentication configuration.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:     false,
		APIKey:      os.Getenv("API_KEY"),
		HeaderName:  "X-API-Key",
		PublicPaths: []string{"/healthz", "/api/v1/health", "/api/v1/ready"},
	}
}

// Auth validates API keys for protected endpoints. Realtime clients may
// also supply the key as an api_key query parameter, since browser
// EventSource and WebSocket APIs cannot set custom headers.
func Auth(config AuthConfig, logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled || isPublicPath(r.URL.Path, config.PublicPaths) {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r, config.HeaderName)
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(config.APIKey)) != 1 {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Bool("key_provided", key != "").
					Msg("Authentication failed")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"data":null,"error":{"code":"UNAUTHORIZED","message":"Invalid or missing API key"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isPublicPath(path string, publicPaths []string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// extractAPIKey reads the credential from the configured header, a bearer
// Authorization header, or the api_key query parameter, in that order.
func extractAPIKey(r *http.Request, headerName string) string {
	if key := r.Header.Get(headerName); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("api_key")
}
