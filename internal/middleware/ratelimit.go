package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ClientIP returns the originating address of a request. Behind a
// reverse proxy the first X-Forwarded-For hop is the client; otherwise
// the socket address is.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
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

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter caps how often each caller may hit an endpoint, counting
// requests in fixed windows. It guards the public notification webhook
// against redelivery storms and junk traffic.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	byKey map[string]*window
}

// NewRateLimiter allows limit requests per key in each window.
func NewRateLimiter(limit int, windowLen time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: windowLen,
		byKey:  make(map[string]*window),
	}
}

// Allow reports whether the key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.byKey[key]
	if !ok || now.After(w.resetAt) {
		rl.byKey[key] = &window{count: 1, resetAt: now.Add(rl.window)}
		return true
	}
	w.count++
	return w.count <= rl.limit
}

// Cleanup drops windows that have expired. Run it periodically so the
// key map does not grow with every address that ever called.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, w := range rl.byKey {
		if now.After(w.resetAt) {
			delete(rl.byKey, key)
		}
	}
}

// Middleware rejects requests over the limit with 429, keyed by keyFunc.
func (rl *RateLimiter) Middleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(keyFunc(r)) {
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
