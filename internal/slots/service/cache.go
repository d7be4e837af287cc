package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/redis/go-redis/v9"
)

const availabilityKeyPrefix = "availability:"

// AvailabilityCache fronts availability reads. Entries may be stale for at
// most their TTL; every reserve and release deletes the slot's entry.
type AvailabilityCache interface {
	Get(ctx context.Context, slotID string) (*model.Availability, bool)
	Set(ctx context.Context, a *model.Availability)
	Invalidate(ctx context.Context, slotID string)
}

type nopCache struct{}

func NewNopCache() AvailabilityCache { return nopCache{} }

func (nopCache) Get(context.Context, string) (*model.Availability, bool) { return nil, false }
func (nopCache) Set(context.Context, *model.Availability)                {}
func (nopCache) Invalidate(context.Context, string)                      {}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) AvailabilityCache {
	return &redisCache{client: client, ttl: ttl, log: log}
}

func AvailabilityKey(slotID string) string {
	return availabilityKeyPrefix + slotID
}

// Get treats every Redis failure as a miss; the store stays authoritative.
func (c *redisCache) Get(ctx context.Context, slotID string) (*model.Availability, bool) {
	raw, err := c.client.Get(ctx, AvailabilityKey(slotID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Availability cache read failed", "slot_id", slotID, "error", err)
		}
		return nil, false
	}

	var a model.Availability
	if err := json.Unmarshal(raw, &a); err != nil {
		c.log.Warn("Availability cache entry corrupt", "slot_id", slotID, "error", err)
		return nil, false
	}
	return &a, true
}

func (c *redisCache) Set(ctx context.Context, a *model.Availability) {
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, AvailabilityKey(a.SlotID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("Availability cache write failed", "slot_id", a.SlotID, "error", err)
	}
}

func (c *redisCache) Invalidate(ctx context.Context, slotID string) {
	if err := c.client.Del(ctx, AvailabilityKey(slotID)).Err(); err != nil {
		c.log.Warn("Availability cache invalidation failed", "slot_id", slotID, "error", err)
	}
}
