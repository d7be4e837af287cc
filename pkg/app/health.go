package app

import (
	"context"
	"net/http"
	"time"

	"slotkeeper/internal/storage"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
)

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
	Redis  string `json:"redis,omitempty"`
}

type HealthHandler struct {
	store storage.Store
	redis *redis.Client
	log   *logger.Logger
}

// NewHealthHandler checks the store and, when configured, Redis. A nil
// redis client is skipped.
func NewHealthHandler(store storage.Store, redisClient *redis.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store: store,
		redis: redisClient,
		log:   log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ready", Store: "ok"}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		h.log.Error("Store health check failed", "store", h.store.Name(), "error", err, "path", r.URL.Path)
		resp.Status, resp.Store = "unavailable", "error"
		status = http.StatusServiceUnavailable
	}

	if h.redis != nil {
		resp.Redis = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.log.Error("Redis health check failed", "error", err, "path", r.URL.Path)
			resp.Status, resp.Redis = "unavailable", "error"
			status = http.StatusServiceUnavailable
		}
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
