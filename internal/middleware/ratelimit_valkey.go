package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// ValkeyRateLimiter implements fixed-window rate limiting backed by
// Valkey/Redis, for deployments running more than one gridd instance.
type ValkeyRateLimiter struct {
	client        *redis.Client
	requestLimit  int
	windowSeconds int
}

// NewValkeyRateLimiter creates a new Valkey-based rate limiter
func NewValkeyRateLimiter(addr string, requestLimit int, windowSeconds int) (*ValkeyRateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return &ValkeyRateLimiter{
		client:        client,
		requestLimit:  requestLimit,
		windowSeconds: windowSeconds,
	}, nil
}

// HTTPMiddleware returns HTTP middleware for rate limiting
func (v *ValkeyRateLimiter) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining := v.check(r.Context(), clientAddr(r))

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", v.requestLimit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Window", fmt.Sprintf("%d", v.windowSeconds))

		if !allowed {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// check counts the request against the client's current window. On any
// Valkey error the request is allowed; the limiter must not take the
// API down with it.
func (v *ValkeyRateLimiter) check(ctx context.Context, clientID string) (bool, int) {
	key := fmt.Sprintf("ratelimit:%s:%d", clientID, time.Now().Unix()/int64(v.windowSeconds))

	count, err := v.client.Incr(ctx, key).Result()
	if err != nil {
		return true, v.requestLimit
	}

	if count == 1 {
		v.client.Expire(ctx, key, time.Duration(v.windowSeconds)*time.Second)
	}

	remaining := v.requestLimit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return int(count) <= v.requestLimit, remaining
}

// Close releases the Valkey connection.
func (v *ValkeyRateLimiter) Close() error {
	return v.client.Close()
}
