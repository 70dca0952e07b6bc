// Package ratelimit throttles requests per key with a token bucket for
// each key.
package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config sets the sustained rate and burst allowed per key. A PerMinute of
// zero disables limiting.
type Config struct {
	PerMinute int `koanf:"per-minute" validate:"gte=0"`
	Burst     int `koanf:"burst" validate:"gte=0"`
}

// idleAfter is how long an unused key keeps its bucket.
const idleAfter = 10 * time.Minute

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Limiter holds one bucket per key.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// New creates a Limiter reading time from now.
func New(cfg Config, now func() time.Time) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = max(cfg.PerMinute, 1)
	}
	return &Limiter{cfg: cfg, now: now, buckets: make(map[string]*bucket)}
}

// Allow reports whether one more event for key fits the budget, and
// consumes it if so.
func (l *Limiter) Allow(key string) bool {
	if l.cfg.PerMinute <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(l.cfg.PerMinute)/60), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.seen = now
	l.sweep(now)
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// sweep drops idle buckets. l.mu must be held.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleAfter {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.seen) >= idleAfter {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// retryAfter is the wait, in whole seconds, until one token is back.
func (l *Limiter) retryAfter() int {
	return int(math.Ceil(60 / float64(l.cfg.PerMinute)))
}

// Middleware rejects requests over budget with 429. Requests for which key
// returns "" are not limited.
func (l *Limiter) Middleware(key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" || l.Allow(k) {
				next.ServeHTTP(w, r)
				return
			}
			slog.Warn("rate limit exceeded", "key", k, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}` + "\n"))
		})
	}
}
