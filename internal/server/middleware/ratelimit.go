package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracklight/tracklight/internal/server/response"
)

// RateLimiter applies a fixed-window request limit per client IP. The
// long-lived realtime endpoints are exempt: one stream session is one
// request, and limiting it would punish exactly the clients behaving
// correctly.
type RateLimiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	limit       int
	exemptPaths []string
	logger      *zerolog.Logger
}

type window struct {
	count   int
	started time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per minute per
// IP. exemptPaths are matched exactly.
func NewRateLimiter(limit int, exemptPaths []string, logger *zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		windows:     make(map[string]*window),
		limit:       limit,
		exemptPaths: exemptPaths,
		logger:      logger,
	}
	go rl.cleanup()
	return rl
}

// cleanup drops stale windows so the map stays bounded.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for ip, w := range rl.windows {
			if time.Since(w.started) > 10*time.Minute {
				delete(rl.windows, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow records one request for ip and reports whether it is within the
// limit.
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[ip]
	if !ok || time.Since(w.started) >= time.Minute {
		rl.windows[ip] = &window{count: 1, started: time.Now()}
		return true
	}
	w.count++
	return w.count <= rl.limit
}

// RateLimit rejects requests over the per-IP limit with a 429 envelope.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range rl.exemptPaths {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}

			ip := clientIP(r)
			if !rl.allow(ip) {
				rl.logger.Warn().
					Str("remote_addr", ip).
					Str("path", r.URL.Path).
					Msg("Rate limit exceeded")
				response.RateLimited(w, "Too many requests from this address")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from the remote address.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
