package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// rateLimiter implements per-client sliding window rate limiting.
// Each bucket tracks timestamps of recent requests within the window.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	limit   int
	now     func() time.Time
}

type bucket struct {
	events []time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		window:  time.Minute,
		limit:   perMinute,
		now:     time.Now,
	}
}

// allow reports whether another request from key fits in the window.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{}
		rl.buckets[key] = b
	}

	now := rl.now()
	b.evict(now, rl.window)

	if len(b.events) >= rl.limit {
		return false
	}
	b.events = append(b.events, now)
	return true
}

// evict removes events outside the sliding window. Events are
// chronologically ordered.
func (b *bucket) evict(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}

// rateLimitMiddleware rejects clients that exceed the per-minute request
// budget with 429. Clients are keyed by remote address.
func rateLimitMiddleware(rl *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if !rl.allow(host) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
