package httpx

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters for a handler group.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// StrictLimit suits credential-bearing endpoints (brute force prevention):
// 10 requests per minute with the full budget available as a burst.
var StrictLimit = RateLimitConfig{
	RequestsPerWindow: 10,
	Window:            time.Minute,
	Burst:             10,
}

// RateLimit returns middleware enforcing cfg per client IP. Limiter state for
// idle clients is dropped after ten windows.
func RateLimit(cfg RateLimitConfig) Middleware {
	limit := rate.Every(cfg.Window / time.Duration(cfg.RequestsPerWindow))

	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	lookup := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		c, ok := clients[ip]
		if !ok {
			c = &client{limiter: rate.NewLimiter(limit, cfg.Burst)}
			clients[ip] = c
		}
		c.lastSeen = now

		// Opportunistic cleanup of idle entries
		cutoff := now.Add(-10 * cfg.Window)
		for key, other := range clients {
			if other.lastSeen.Before(cutoff) {
				delete(clients, key)
			}
		}

		return c.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !lookup(ip).Allow() {
				w.Header().Set("Retry-After", cfg.Window.String())
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
