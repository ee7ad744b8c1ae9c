package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/parlorhq/parlor/internal/kvstore"
)

// RealIP extracts the client's real IP address, preferring Cloudflare's
// CF-Connecting-IP header, then X-Forwarded-For, and falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimiter counts requests per key in fixed windows over the shared keyed
// store, so limits hold across restarts and multiple processes.
type RateLimiter struct {
	kv     kvstore.Store
	prefix string
}

func NewRateLimiter(kv kvstore.Store) *RateLimiter {
	return &RateLimiter{kv: kv, prefix: "ratelimit"}
}

// Allow returns true if the key has not exceeded limit in the given window.
// A store failure fails open.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	count, err := rl.kv.Increment(fmt.Sprintf("%s:%s", rl.prefix, key), window)
	if err != nil {
		return true
	}
	return count <= limit
}

// RateLimit returns middleware that rate-limits requests by a key function.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if !limiter.Allow(key, limit, window) {
				writeAuthError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
