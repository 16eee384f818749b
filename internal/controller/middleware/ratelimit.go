package middleware

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"hpcgateway/internal/auth"
	"hpcgateway/internal/gateway"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per caller email.
type RateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	limiters  sync.Map // email -> *cachedLimiter
	lastSweep atomic.Int64
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithLimit sets the sustained requests per second and the burst size.
// A limit of 0 disables throttling.
func WithLimit(perSecond float64, burst int) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.limit = rate.Limit(perSecond)
		rl.burst = burst
	}
}

// WithTTL sets how long an idle caller's limiter is kept.
func WithTTL(ttl time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.ttl = ttl
	}
}

// NewRateLimiter creates a limiter. Without options it lets everything through.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.burst <= 0 {
		rl.burst = 1
	}
	rl.lastSweep.Store(time.Now().UnixNano())
	return rl
}

// Middleware must run after AuthMiddleware.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, gateway.FromAuth(auth.ErrMissingToken))
				return
			}

			// Limit 0 means unlimited
			if rl.limit > 0 && !rl.limiter(id.Email).Allow() {
				w.Header().Set("Retry-After", "1")
				WriteError(w, gateway.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter *rate.Limiter
	// lastSeen is unix nanos of the caller's latest request.
	lastSeen atomic.Int64
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := time.Now()
	for {
		if v, ok := rl.limiters.Load(key); ok {
			cached := v.(*cachedLimiter)
			if now.Sub(time.Unix(0, cached.lastSeen.Load())) < rl.ttl {
				cached.lastSeen.Store(now.UnixNano())
				return cached.limiter
			}
			// Idle past the TTL: start over with a full bucket. Only one
			// concurrent caller manages to drop the stale entry.
			rl.limiters.CompareAndDelete(key, cached)
			continue
		}

		fresh := rl.newCached(now)
		if _, loaded := rl.limiters.LoadOrStore(key, fresh); loaded {
			continue // lost the race to another first request
		}
		rl.maybeSweep(now)
		return fresh.limiter
	}
}

func (rl *RateLimiter) newCached(now time.Time) *cachedLimiter {
	c := &cachedLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// maybeSweep evicts idle limiters at most once per TTL, piggybacking on the
// arrival of a new caller.
func (rl *RateLimiter) maybeSweep(now time.Time) {
	last := rl.lastSweep.Load()
	if now.Sub(time.Unix(0, last)) < rl.ttl || !rl.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	rl.sweep(now)
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.limiters.Range(func(k, v any) bool {
		cached := v.(*cachedLimiter)
		if now.Sub(time.Unix(0, cached.lastSeen.Load())) >= rl.ttl {
			rl.limiters.CompareAndDelete(k, cached)
		}
		return true
	})
}
