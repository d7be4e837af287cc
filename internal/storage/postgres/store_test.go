package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pgmigrate "slotkeeper/internal/migrations/postgres"
	"slotkeeper/internal/storage"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const testURLEnv = "SLOTKEEPER_TEST_POSTGRES_URL"

func setupStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv(testURLEnv)
	if url == "" {
		t.Skipf("%s not set", testURLEnv)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pgmigrate.RunMigration(ctx, pool, logger.Discard()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(pool, clock.Real())
}

func createSlot(t *testing.T, s *Store, capacity int) *model.Slot {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	slot := &model.Slot{
		ID:        uuid.NewString(),
		ServiceID: "pg-test",
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
		Capacity:  capacity,
		CreatedAt: now,
	}
	if err := s.Slots().CreateSlot(context.Background(), slot); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	return slot
}

func TestPostgres_TryReserveRace(t *testing.T) {
	s := setupStore(t)
	slot := createSlot(t, s, 1)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Slots().TryReserve(context.Background(), slot.ID, 1)
			if err != nil {
				t.Errorf("TryReserve: %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected one winner, got %d", wins.Load())
	}
}

func TestPostgres_ReleaseClamp(t *testing.T) {
	s := setupStore(t)
	slot := createSlot(t, s, 1)

	clamped, err := s.Slots().Release(context.Background(), slot.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !clamped {
		t.Error("expected clamp on empty slot")
	}
	if _, err := s.Slots().Release(context.Background(), "missing", 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_DuplicatePaymentEventInsideTransaction(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	e := &model.PaymentEvent{
		Provider:        "standard",
		ExternalEventID: uuid.NewString(),
		Type:            model.PaymentSucceeded,
		BookingID:       "b",
		Amount:          100,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := s.PaymentEvents().InsertPaymentEvent(ctx, e); err != nil {
		t.Fatal(err)
	}

	err := s.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.PaymentEvents().InsertPaymentEvent(ctx, e); !errors.Is(err, storage.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
		// The transaction must still be usable after the duplicate.
		_, err := tx.PaymentEvents().FindPaymentEvent(ctx, e.Provider, e.ExternalEventID)
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestPostgres_RollbackUndoesReservation(t *testing.T) {
	s := setupStore(t)
	slot := createSlot(t, s, 1)
	boom := errors.New("boom")

	err := s.ExecuteTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.Slots().TryReserve(ctx, slot.ID, 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := s.Slots().FindSlot(context.Background(), slot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Reserved != 0 {
		t.Errorf("reservation survived rollback: %d", got.Reserved)
	}
}

func TestPostgres_LockSlotBlocksBookingInsert(t *testing.T) {
	s := setupStore(t)
	slot := createSlot(t, s, 2)
	ctx := context.Background()
	now := time.Now().UTC()

	locked := make(chan struct{})
	inserted := make(chan error, 1)
	var countInLock int64

	go func() {
		<-locked
		inserted <- s.Bookings().CreateBooking(ctx, &model.Booking{
			ID: uuid.NewString(), SlotID: slot.ID, SessionID: "s", Client: model.ClientInfo{Name: "Ann"},
			AmountDue: 100, Currency: "PLN", Status: model.BookingPending, PaymentStatus: model.PaymentUnpaid,
			PaymentDeadline: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
		})
	}()

	err := s.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.Slots().LockSlot(ctx, slot.ID); err != nil {
			return err
		}
		close(locked)

		select {
		case err := <-inserted:
			t.Errorf("booking insert finished while the slot was locked: %v", err)
			inserted <- err
		case <-time.After(300 * time.Millisecond):
		}

		var err error
		countInLock, err = tx.Bookings().CountBySlot(ctx, slot.ID)
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if countInLock != 0 {
		t.Errorf("count inside lock = %d, want 0", countInLock)
	}
	if err := <-inserted; err != nil {
		t.Fatalf("CreateBooking after unlock: %v", err)
	}
}

func TestPostgres_GroupVersion(t *testing.T) {
	s := setupStore(t)
	slot := createSlot(t, s, 3)
	ctx := context.Background()
	now := time.Now().UTC()
	g := &model.GroupBooking{ID: uuid.NewString(), SlotID: slot.ID, SessionID: "s", MaxSize: 2, Currency: "PLN", CreatedAt: now, UpdatedAt: now}
	if err := s.Groups().CreateGroup(ctx, g); err != nil {
		t.Fatal(err)
	}

	stale, _ := s.Groups().FindGroup(ctx, g.ID)
	g.BookingIDs = []string{"b1"}
	g.Participants = []model.ClientInfo{{Name: "Ola"}}
	if err := s.Groups().SaveGroup(ctx, g); err != nil {
		t.Fatal(err)
	}
	if err := s.Groups().SaveGroup(ctx, stale); !errors.Is(err, storage.ErrConcurrentUpdate) {
		t.Errorf("expected ErrConcurrentUpdate, got %v", err)
	}

	got, _ := s.Groups().FindGroup(ctx, g.ID)
	if len(got.Participants) != 1 || got.Participants[0].Name != "Ola" {
		t.Errorf("participants not persisted: %+v", got.Participants)
	}
}
