package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	holdserrors "slotkeeper/internal/holds/errors"
	slotsservice "slotkeeper/internal/slots/service"
	"slotkeeper/internal/storage"
	"slotkeeper/internal/storage/memory"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/validation"

	"github.com/google/uuid"
)

type testEnv struct {
	holds HoldService
	store *memory.Store
	clock *clock.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.New(logger.Config{
		Level:   "info",
		Format:  logger.JSON,
		Service: "test",
	})
	cfg := &config.Config{
		Log:        log,
		HoldTTL:    5 * time.Minute,
		MaxHoldTTL: 30 * time.Minute,
	}
	clk := clock.NewFake(time.Time{})
	store := memory.New(clk)
	v := validation.New(log)
	slots := slotsservice.NewSlotService(store, nil, v, clk, cfg)
	return &testEnv{
		holds: NewHoldService(store, slots, v, clk, cfg),
		store: store,
		clock: clk,
	}
}

func (e *testEnv) slot(t *testing.T, capacity int) string {
	t.Helper()
	slot := &model.Slot{
		ID:        uuid.NewString(),
		ServiceID: "massage",
		StartTime: e.clock.Now().Add(time.Hour),
		EndTime:   e.clock.Now().Add(2 * time.Hour),
		Capacity:  capacity,
	}
	if err := e.store.Slots().CreateSlot(context.Background(), slot); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	return slot.ID
}

func (e *testEnv) reserved(t *testing.T, slotID string) int {
	t.Helper()
	slot, err := e.store.Slots().FindSlot(context.Background(), slotID)
	if err != nil {
		t.Fatalf("FindSlot: %v", err)
	}
	return slot.Reserved
}

func assertAppError(t *testing.T, err error, code string, status int) {
	t.Helper()
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError %s, got %v", code, err)
	}
	if appErr.Code != code || appErr.HTTPStatus != status {
		t.Fatalf("got %s/%d, want %s/%d", appErr.Code, appErr.HTTPStatus, code, status)
	}
}

func TestClampTTL(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"zero uses default", 0, 5 * time.Minute},
		{"below minimum", 200 * time.Millisecond, time.Second},
		{"in range", 90 * time.Second, 90 * time.Second},
		{"above maximum", 2 * time.Hour, 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampTTL(tt.in, 5*time.Minute, 30*time.Minute); got != tt.want {
				t.Errorf("ClampTTL(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCreate_ReservesOneUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 2)

	hold, created, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created {
		t.Error("expected a new hold")
	}
	if want := env.clock.Now().Add(5 * time.Minute); !hold.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", hold.ExpiresAt, want)
	}
	if got := env.reserved(t, slotID); got != 1 {
		t.Errorf("reserved = %d, want 1", got)
	}
}

func TestCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	slotID := env.slot(t, 1)

	tests := []struct {
		name string
		req  CreateRequest
		code string
	}{
		{"missing slot", CreateRequest{SessionID: "s"}, apperrors.CodeInvalidInput},
		{"missing session", CreateRequest{SlotID: slotID}, apperrors.CodeValidation},
		{"session with spaces", CreateRequest{SlotID: slotID, SessionID: "a b"}, apperrors.CodeValidation},
		{"negative ttl", CreateRequest{SlotID: slotID, SessionID: "s", TTL: -time.Second}, apperrors.CodeInvalidInput},
		{"unknown slot", CreateRequest{SlotID: "nope", SessionID: "s"}, apperrors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.holds.Create(context.Background(), tt.req)
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) || appErr.Code != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
	if got := env.reserved(t, slotID); got != 0 {
		t.Errorf("failed creates must not reserve, reserved = %d", got)
	}
}

func TestCreate_SameSessionIsDeduplicated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 3)

	first, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a"})
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, created, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a"})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}

	if created || second.ID != first.ID {
		t.Errorf("expected the existing hold %s back, got %s (created=%v)", first.ID, second.ID, created)
	}
	if got := env.reserved(t, slotID); got != 1 {
		t.Errorf("reserved = %d, want 1", got)
	}
}

func TestCreate_ReplacesExpiredSessionHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 1)

	first, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a", TTL: time.Minute})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	env.clock.Advance(61 * time.Second)

	second, created, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a"})
	if err != nil {
		t.Fatalf("Create after expiry: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Error("expected a fresh hold replacing the expired one")
	}
	if got := env.reserved(t, slotID); got != 1 {
		t.Errorf("reserved = %d, want 1", got)
	}
	if _, err := env.store.Holds().FindHold(ctx, first.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expired hold should be gone, got %v", err)
	}
}

func TestCreate_ExpiryFreesTheLastUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 1)

	a, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "client-a", TTL: 300 * time.Second})
	if err != nil {
		t.Fatalf("client A: %v", err)
	}

	_, _, err = env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "client-b"})
	assertAppError(t, err, apperrors.CodeSlotUnavailable, http.StatusConflict)

	env.clock.Advance(301 * time.Second)
	won, err := env.holds.Expire(ctx, a.ID)
	if err != nil || !won {
		t.Fatalf("Expire = %v, %v; want true", won, err)
	}
	if got := env.reserved(t, slotID); got != 0 {
		t.Fatalf("reserved = %d after expiry, want 0", got)
	}

	if _, created, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "client-b"}); err != nil || !created {
		t.Fatalf("client B retry: created=%v err=%v", created, err)
	}
}

func TestCreate_ConcurrentLastUnit(t *testing.T) {
	env := newTestEnv(t)
	slotID := env.slot(t, 1)

	const clients = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := env.holds.Create(context.Background(), CreateRequest{
				SlotID:    slotID,
				SessionID: fmt.Sprintf("sess-%d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if apperrors.HasCode(err, apperrors.CodeSlotUnavailable) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 || conflicts != clients-1 {
		t.Errorf("winners=%d conflicts=%d, want 1 and %d", winners, conflicts, clients-1)
	}
	if got := env.reserved(t, slotID); got != 1 {
		t.Errorf("reserved = %d, want 1", got)
	}
}

func TestRenew(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 5)

	hold, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a", TTL: time.Minute})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.clock.Advance(30 * time.Second)
	renewed, err := env.holds.Renew(ctx, hold.ID, 2*time.Minute)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if want := env.clock.Now().Add(2 * time.Minute); !renewed.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", renewed.ExpiresAt, want)
	}

	shorter, err := env.holds.Renew(ctx, hold.ID, 5*time.Second)
	if err != nil {
		t.Fatalf("short Renew: %v", err)
	}
	if !shorter.ExpiresAt.Equal(renewed.ExpiresAt) {
		t.Errorf("renewal shortened the hold to %v", shorter.ExpiresAt)
	}
}

func TestRenew_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 5)

	t.Run("unknown hold", func(t *testing.T) {
		_, err := env.holds.Renew(ctx, "missing", 0)
		assertAppError(t, err, apperrors.CodeHoldNotFound, http.StatusNotFound)
	})

	t.Run("expired hold is reclaimed", func(t *testing.T) {
		hold, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-exp", TTL: time.Minute})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		before := env.reserved(t, slotID)
		env.clock.Advance(61 * time.Second)

		_, err = env.holds.Renew(ctx, hold.ID, 0)
		assertAppError(t, err, apperrors.CodeHoldExpired, http.StatusGone)
		if got := env.reserved(t, slotID); got != before-1 {
			t.Errorf("reserved = %d, want %d", got, before-1)
		}
	})

	t.Run("consumed hold", func(t *testing.T) {
		hold, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-con"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := env.holds.Consume(ctx, env.store, hold.ID); err != nil {
			t.Fatalf("Consume: %v", err)
		}
		_, err = env.holds.Renew(ctx, hold.ID, 0)
		assertAppError(t, err, apperrors.CodeHoldExpired, http.StatusGone)
	})
}

func TestConsume_OnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 1)

	hold, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	consumed, err := env.holds.Consume(ctx, env.store, hold.ID)
	if err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if !consumed.Consumed() {
		t.Error("expected consumedAt to be set")
	}

	_, err = env.holds.Consume(ctx, env.store, hold.ID)
	if !errors.Is(err, holdserrors.ErrHoldExpired) {
		t.Errorf("second Consume: expected ErrHoldExpired, got %v", err)
	}
	if got := env.reserved(t, slotID); got != 1 {
		t.Errorf("consume must not change reserved, got %d", got)
	}
}

func TestConsume_ExpiredHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 1)

	hold, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a", TTL: time.Minute})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	env.clock.Advance(time.Minute + time.Second)

	_, err = env.holds.Consume(ctx, env.store, hold.ID)
	if !errors.Is(err, holdserrors.ErrHoldExpired) {
		t.Errorf("expected ErrHoldExpired, got %v", err)
	}
	assertAppError(t, ToAppError(err, slotID, hold.ID), apperrors.CodeHoldExpired, http.StatusGone)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 2)

	hold, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := range 2 {
		if err := env.holds.Cancel(ctx, hold.ID); err != nil {
			t.Fatalf("Cancel #%d: %v", i+1, err)
		}
	}
	if got := env.reserved(t, slotID); got != 0 {
		t.Errorf("reserved = %d, want exactly one release", got)
	}
}

func TestCancel_ConsumedHoldIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 1)

	hold, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := env.holds.Consume(ctx, env.store, hold.ID); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	err = env.holds.Cancel(ctx, hold.ID)
	assertAppError(t, err, apperrors.CodeConflict, http.StatusConflict)
	if got := env.reserved(t, slotID); got != 1 {
		t.Errorf("reserved = %d, the booking still owns the unit", got)
	}
}

func TestExpire_OnlyPastDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slotID := env.slot(t, 1)

	hold, _, err := env.holds.Create(ctx, CreateRequest{SlotID: slotID, SessionID: "sess-a", TTL: time.Minute})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.clock.Advance(time.Minute)
	if won, err := env.holds.Expire(ctx, hold.ID); err != nil || won {
		t.Fatalf("hold at its deadline must survive: won=%v err=%v", won, err)
	}

	env.clock.Advance(time.Second)
	if won, err := env.holds.Expire(ctx, hold.ID); err != nil || !won {
		t.Fatalf("Expire = %v, %v; want true", won, err)
	}
	if won, err := env.holds.Expire(ctx, hold.ID); err != nil || won {
		t.Fatalf("second Expire must lose: won=%v err=%v", won, err)
	}
	if got := env.reserved(t, slotID); got != 0 {
		t.Errorf("reserved = %d, want 0", got)
	}
}
