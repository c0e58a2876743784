package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ashureev/vetcheck/internal/identity"
)

// RateLimiter is a keyed token-bucket limiter. Keys are session ids for
// message routes and client IPs for session creation.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute events per key per minute with a burst of
// perMinute. perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Inf,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
	if perMinute > 0 {
		rl.limit = rate.Every(time.Minute / time.Duration(perMinute))
		rl.burst = perMinute
	}
	return rl
}

// Allow reports whether key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit == rate.Inf {
		return true
	}
	now := r.now()

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = e
	}
	e.lastSeen = now
	r.mu.Unlock()

	return e.lim.AllowN(now, 1)
}

// Forget drops key's bucket.
func (r *RateLimiter) Forget(key string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Evict drops keys unused since the idle TTL and returns how many were removed.
func (r *RateLimiter) Evict() int {
	cutoff := r.now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, key)
			n++
		}
	}
	return n
}

// StartEviction evicts idle keys every interval until ctx is done.
func (r *RateLimiter) StartEviction(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Evict()
			}
		}
	}()
	return done
}

// KeyFunc picks the limiter key for a request.
type KeyFunc func(r *http.Request) string

// BySession keys on the request's session id, falling back to the client IP.
func BySession(r *http.Request) string {
	if id := identity.SessionIDFromContext(r.Context()); id != "" {
		return SessionKey(id)
	}
	return ByIP(r)
}

// SessionKey is the limiter key for a session id.
func SessionKey(id string) string { return "session:" + id }

// ByIP keys on the client IP.
func ByIP(r *http.Request) string {
	return "ip:" + identity.IPFromRequest(r)
}

// Middleware rejects requests over the limit with 429.
func (r *RateLimiter) Middleware(key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !r.Allow(key(req)) {
				w.Header().Set("Retry-After", "60")
				Error(w, http.StatusTooManyRequests, "too many messages, please slow down")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
