package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/session"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultIdempotencyHeader = "Idempotency-Key"
	ReplayedHeader           = "Idempotent-Replayed"

	idempotencyKeyPrefix = "slotkeeper:idem:"
)

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Set(ctx context.Context, key string, response *CachedResponse) error
	Stop() // Stop cleanup goroutines and release resources
}

type CachedResponse struct {
	StatusCode int         `json:"statusCode"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
	CreatedAt  time.Time   `json:"createdAt"`
}

type InMemoryIdempotencyStore struct {
	mu       sync.RWMutex
	store    map[string]*CachedResponse
	ttl      time.Duration
	clock    clock.Clock
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewInMemoryIdempotencyStore(ttl time.Duration, clk clock.Clock) *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		store:  make(map[string]*CachedResponse),
		ttl:    ttl,
		clock:  clk,
		stopCh: make(chan struct{}),
	}

	go store.cleanup()

	return store
}

func (s *InMemoryIdempotencyStore) Get(_ context.Context, key string) (*CachedResponse, bool, error) {
	s.mu.RLock()
	response, exists := s.store[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	if s.clock.Now().Sub(response.CreatedAt) > s.ttl {
		s.mu.Lock()
		delete(s.store, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	return response, true, nil
}

func (s *InMemoryIdempotencyStore) Set(_ context.Context, key string, response *CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	response.CreatedAt = s.clock.Now()
	s.store[key] = response
	return nil
}

func (s *InMemoryIdempotencyStore) cleanup() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := s.clock.Now()
			s.mu.Lock()
			for key, response := range s.store {
				if now.Sub(response.CreatedAt) > s.ttl {
					delete(s.store, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// RedisIdempotencyStore shares cached responses between replicas. Entries
// expire through the Redis TTL.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  clock.Clock
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration, clk clock.Clock) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl, clock: clk}
}

func IdempotencyRedisKey(key string) string {
	return idempotencyKeyPrefix + key
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	raw, err := s.client.Get(ctx, IdempotencyRedisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cached CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, err
	}
	return &cached, true, nil
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) error {
	response.CreatedAt = s.clock.Now()
	raw, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, IdempotencyRedisKey(key), raw, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Stop() {}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the first successful response for a repeated key.
// Keys are scoped to the session, method and path, so two clients cannot
// collide on the same key. Store failures fall through to the handler.
func Idempotency(store IdempotencyStore, headerName string, log *logger.Logger) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = DefaultIdempotencyHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey := r.Header.Get(headerName)

			if idempotencyKey == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			key := scopedKey(r, idempotencyKey)

			cached, found, err := store.Get(r.Context(), key)
			if err != nil {
				log.Warn("Idempotency store read failed", "request_id", RequestID(r), "error", err)
			}
			if found {
				log.Debug("Replaying idempotent response", "request_id", RequestID(r), "path", r.URL.Path)
				replayCachedResponse(w, cached)
				return
			}

			capture := captureResponse(w)
			next.ServeHTTP(capture, r)

			if !shouldCacheResponse(capture.statusCode) {
				return
			}
			headers := w.Header().Clone()
			headers.Del("Set-Cookie")
			headers.Del(RequestIDHeader)
			if err := store.Set(r.Context(), key, &CachedResponse{
				StatusCode: capture.statusCode,
				Headers:    headers,
				Body:       capture.body.Bytes(),
			}); err != nil {
				log.Warn("Idempotency store write failed", "request_id", RequestID(r), "error", err)
			}
		})
	}
}

func scopedKey(r *http.Request, key string) string {
	sum := sha256.Sum256([]byte(session.FromContext(r.Context()) + "\x00" + r.Method + "\x00" + r.URL.Path + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}

func captureResponse(w http.ResponseWriter) *responseCapture {
	return &responseCapture{
		ResponseWriter: w,
		statusCode:     200,
		body:           &bytes.Buffer{},
	}
}

func shouldCacheResponse(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
