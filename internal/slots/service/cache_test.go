package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_MissThenFill(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	cache := NewRedisCache(db, 2*time.Second, logger.Discard())
	svc, _, clk := newTestService(t, cache)
	ctx := context.Background()

	slot := createTestSlot(t, svc, clk, 4)
	key := AvailabilityKey(slot.ID)

	expected := model.NewAvailability(slot, clk.Now())
	raw, err := json.Marshal(&expected)
	require.NoError(t, err)

	mockRedis.ExpectGet(key).RedisNil()
	mockRedis.ExpectSet(key, raw, 2*time.Second).SetVal("OK")

	a, err := svc.GetAvailability(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, a.Available)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestRedisCache_HitSkipsStore(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	cache := NewRedisCache(db, 2*time.Second, logger.Discard())
	svc, _, _ := newTestService(t, cache)

	cached := model.Availability{SlotID: "cached-slot", Capacity: 10, Reserved: 7, Available: 3}
	raw, _ := json.Marshal(cached)
	mockRedis.ExpectGet(AvailabilityKey("cached-slot")).SetVal(string(raw))

	a, err := svc.GetAvailability(context.Background(), "cached-slot")
	require.NoError(t, err)
	assert.Equal(t, 3, a.Available)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestRedisCache_ErrorFallsBackToStore(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	cache := NewRedisCache(db, time.Second, logger.Discard())

	mockRedis.ExpectGet(AvailabilityKey("s1")).SetErr(errors.New("connection refused"))

	_, ok := cache.Get(context.Background(), "s1")
	assert.False(t, ok)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestRedisCache_Invalidate(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	cache := NewRedisCache(db, time.Second, logger.Discard())

	mockRedis.ExpectDel(AvailabilityKey("s1")).SetVal(1)
	cache.Invalidate(context.Background(), "s1")

	assert.NoError(t, mockRedis.ExpectationsWereMet())
}
