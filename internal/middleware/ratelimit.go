package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter manages per-client token buckets for the HTTP API.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*limiterState
	rate       rate.Limit
	burst      int
	expiration time.Duration
	done       chan struct{}
}

type limiterState struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiterConfig configures the rate limiter
type RateLimiterConfig struct {
	Rate       float64       // Rate limit in requests per second
	Burst      int           // Maximum burst size
	Expiration time.Duration // How long to keep limiters for inactive clients
}

// NewRateLimiter creates a new RateLimiter and starts its cleanup loop.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Expiration <= 0 {
		config.Expiration = time.Hour
	}

	rl := &RateLimiter{
		limiters:   make(map[string]*limiterState),
		rate:       rate.Limit(config.Rate),
		burst:      config.Burst,
		expiration: config.Expiration,
		done:       make(chan struct{}),
	}

	go rl.cleanupLoop()
	return rl
}

// Allow reports whether clientID may proceed.
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	state, exists := rl.limiters[clientID]
	if !exists {
		state = &limiterState{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[clientID] = state
	}
	state.lastUsed = time.Now()
	rl.mu.Unlock()

	return state.limiter.Allow()
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.expiration)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	for clientID, state := range rl.limiters {
		if time.Since(state.lastUsed) > rl.expiration {
			delete(rl.limiters, clientID)
		}
	}
	rl.mu.Unlock()
}

// RateLimit wraps a handler with per-client rate limiting keyed on the
// client address.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientAddr(r)) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
