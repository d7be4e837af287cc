package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"slotkeeper/pkg/clock"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/session"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per key within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
	Window() time.Duration
	Stop()
}

// InMemoryRateLimiter is a sliding-window limiter for a single instance.
type InMemoryRateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	clock    clock.Clock
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewInMemoryRateLimiter(window time.Duration, clk clock.Clock) *InMemoryRateLimiter {
	limiter := &InMemoryRateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		clock:    clk,
		stopCh:   make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *InMemoryRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *InMemoryRateLimiter) evictIdle() {
	now := rl.clock.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, timestamps := range rl.requests {
		if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) >= rl.window {
			delete(rl.requests, key)
		}
	}
}

func (rl *InMemoryRateLimiter) Window() time.Duration { return rl.window }

func (rl *InMemoryRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow records one request for key and reports whether it fits the window.
// Rejected requests are not recorded.
func (rl *InMemoryRateLimiter) Allow(_ context.Context, key string, limit int) (bool, error) {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	timestamps := rl.requests[key]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= limit {
		rl.requests[key] = valid
		return false, nil
	}

	rl.requests[key] = append(valid, now)
	return true, nil
}

// RedisRateLimiter is a fixed-window counter shared by every instance.
type RedisRateLimiter struct {
	client *redis.Client
	window time.Duration
	clock  clock.Clock
}

func NewRedisRateLimiter(client *redis.Client, window time.Duration, clk clock.Clock) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, window: window, clock: clk}
}

// RateLimitRedisKey names the counter of key for the window starting at
// bucket*window.
func RateLimitRedisKey(key string, bucket int64) string {
	return "slotkeeper:rl:" + key + ":" + strconv.FormatInt(bucket, 10)
}

func (rl *RedisRateLimiter) bucket() int64 {
	secs := int64(rl.window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return rl.clock.Now().Unix() / secs
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	k := RateLimitRedisKey(key, rl.bucket())

	var count *redis.IntCmd
	_, err := rl.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		count = p.Incr(ctx, k)
		p.Expire(ctx, k, rl.window)
		return nil
	})
	if err != nil {
		return true, err
	}
	return count.Val() <= int64(limit), nil
}

func (rl *RedisRateLimiter) Window() time.Duration { return rl.window }

func (rl *RedisRateLimiter) Stop() {}

// RateLimits bounds matched requests per window. A request whose session was
// minted on the spot is only counted against its address, with the session
// limit; a returning session is counted against both.
type RateLimits struct {
	PerSession int
	PerAddress int
}

// ClientAddress is the host part of the connection's remote address.
// Forwarding headers are ignored because any client can set them.
func ClientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateBucket struct {
	key   string
	limit int
}

// ClientRateLimit applies limiter to the requests matched by applies. Limiter
// failures let the request through.
func ClientRateLimit(limiter RateLimiter, limits RateLimits, applies func(*http.Request) bool, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if applies != nil && !applies(r) {
				next.ServeHTTP(w, r)
				return
			}

			addr := ClientAddress(r)
			buckets := []rateBucket{{key: "addr:" + addr, limit: limits.PerAddress}}
			if session.Fresh(r.Context()) {
				buckets[0].limit = limits.PerSession
			} else {
				buckets = append(buckets, rateBucket{key: "sess:" + session.FromContext(r.Context()), limit: limits.PerSession})
			}

			for _, b := range buckets {
				ok, err := limiter.Allow(r.Context(), b.key, b.limit)
				if err != nil {
					log.Warn("Rate limiter unavailable, allowing request", "key", b.key, "error", err)
					continue
				}
				if !ok {
					rejectRateLimited(w, r, limiter.Window(), b.key, log)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(w http.ResponseWriter, r *http.Request, window time.Duration, key string, log *logger.Logger) {
	log.Warn("Rate limit exceeded",
		"request_id", RequestID(r),
		"key", key,
		"path", r.URL.Path,
	)

	w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
	if writeErr := httputil.WriteError(w, apperrors.RateLimited("Rate limit exceeded")); writeErr != nil {
		log.Error("failed to write error response", "handler", "ClientRateLimit", "operation", "WriteError", "error", writeErr)
	}
}
