package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	bookingsservice "slotkeeper/internal/bookings/service"
	holdsservice "slotkeeper/internal/holds/service"
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

type countingPublisher struct {
	mu     sync.Mutex
	counts map[model.BookingEventType]int
}

func (p *countingPublisher) Publish(ctx context.Context, evt model.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts == nil {
		p.counts = make(map[model.BookingEventType]int)
	}
	p.counts[evt.Type]++
	return nil
}

func (p *countingPublisher) count(typ model.BookingEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[typ]
}

// flakyStore fails every booking read inside transactions while broken is set.
type flakyStore struct {
	*memory.Store
	mu     sync.Mutex
	broken bool
}

func (s *flakyStore) setBroken(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = v
}

func (s *flakyStore) ExecuteTransaction(ctx context.Context, fn storage.TxFunc) error {
	s.mu.Lock()
	broken := s.broken
	s.mu.Unlock()
	return s.Store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		if broken {
			return fn(ctx, brokenTx{tx})
		}
		return fn(ctx, tx)
	})
}

type brokenTx struct{ storage.Tx }

func (t brokenTx) Bookings() storage.BookingRepository { return brokenBookings{t.Tx.Bookings()} }

type brokenBookings struct{ storage.BookingRepository }

func (brokenBookings) FindBooking(context.Context, string) (*model.Booking, error) {
	return nil, errors.New("connection reset by peer")
}

type testEnv struct {
	reconciler Reconciler
	bookings   bookingsservice.BookingService
	holds      holdsservice.HoldService
	store      *flakyStore
	clock      *clock.Fake
	published  *countingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.New(logger.Config{
		Level:   "info",
		Format:  logger.JSON,
		Service: "test",
	})
	cfg := &config.Config{
		Log:             log,
		HoldTTL:         5 * time.Minute,
		MaxHoldTTL:      30 * time.Minute,
		PaymentTimeout:  15 * time.Minute,
		DefaultCurrency: "PLN",
	}
	clk := clock.NewFake(time.Time{})
	store := &flakyStore{Store: memory.New(clk)}
	v := validation.New(log)
	slots := slotsservice.NewSlotService(store, nil, v, clk, cfg)
	holds := holdsservice.NewHoldService(store, slots, v, clk, cfg)
	pub := &countingPublisher{}
	bookings := bookingsservice.NewBookingService(store, holds, slots, pub, v, clk, cfg)
	return &testEnv{
		reconciler: NewReconciler(store, bookings, clk, cfg),
		bookings:   bookings,
		holds:      holds,
		store:      store,
		clock:      clk,
		published:  pub,
	}
}

// pending creates a slot of the given capacity holding one pending booking
// for 200 PLN.
func (e *testEnv) pending(t *testing.T, capacity int) *model.Booking {
	t.Helper()
	ctx := context.Background()
	slot := &model.Slot{
		ID:        uuid.NewString(),
		ServiceID: "massage",
		StartTime: e.clock.Now().Add(time.Hour),
		EndTime:   e.clock.Now().Add(2 * time.Hour),
		Capacity:  capacity,
	}
	if err := e.store.Slots().CreateSlot(ctx, slot); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	hold, _, err := e.holds.Create(ctx, holdsservice.CreateRequest{SlotID: slot.ID, SessionID: "sess-" + slot.ID})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	b, err := e.bookings.CreateFromHold(ctx, bookingsservice.CreateRequest{
		HoldID:    hold.ID,
		Client:    model.ClientInfo{Name: "Jan Nowak"},
		AmountDue: 200,
	})
	if err != nil {
		t.Fatalf("CreateFromHold: %v", err)
	}
	return b
}

func (e *testEnv) booking(t *testing.T, id string) *model.Booking {
	t.Helper()
	b, err := e.store.Bookings().FindBooking(context.Background(), id)
	if err != nil {
		t.Fatalf("FindBooking: %v", err)
	}
	return b
}

func (e *testEnv) reserved(t *testing.T, slotID string) int {
	t.Helper()
	s, err := e.store.Slots().FindSlot(context.Background(), slotID)
	if err != nil {
		t.Fatalf("FindSlot: %v", err)
	}
	return s.Reserved
}

func paymentEvent(bookingID, ext string, typ model.PaymentEventType, amount int64) *model.PaymentEvent {
	return &model.PaymentEvent{
		Provider:        "standard",
		ExternalEventID: ext,
		Type:            typ,
		BookingID:       bookingID,
		Amount:          amount,
		Currency:        "pln",
	}
}

func TestHandlePaymentEvent_ConfirmsPendingBooking(t *testing.T) {
	env := newTestEnv(t)
	b := env.pending(t, 1)

	res, err := env.reconciler.HandlePaymentEvent(context.Background(), paymentEvent(b.ID, "evt-1", model.PaymentSucceeded, 200))
	if err != nil {
		t.Fatalf("HandlePaymentEvent: %v", err)
	}
	if res.Outcome != model.OutcomeApplied || res.Status != model.BookingConfirmed {
		t.Errorf("result = %+v", res)
	}

	got := env.booking(t, b.ID)
	if got.Status != model.BookingConfirmed || got.PaymentStatus != model.PaymentPaid {
		t.Errorf("booking status=%s payment=%s", got.Status, got.PaymentStatus)
	}

	evt, err := env.reconciler.GetEvent(context.Background(), "standard", "evt-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if !evt.Processed || evt.Outcome != model.OutcomeApplied || evt.ProcessedAt == nil || evt.Currency != "PLN" {
		t.Errorf("stored event = %+v", evt)
	}
	if env.published.count(model.EventBookingConfirmed) != 1 {
		t.Errorf("expected one confirmed event")
	}
}

func TestHandlePaymentEvent_DuplicateDelivery(t *testing.T) {
	env := newTestEnv(t)
	b := env.pending(t, 1)
	evt := paymentEvent(b.ID, "evt-dup", model.PaymentSucceeded, 200)

	first, err := env.reconciler.HandlePaymentEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := env.reconciler.HandlePaymentEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if first.Outcome != model.OutcomeApplied {
		t.Errorf("first outcome = %s", first.Outcome)
	}
	if second.Outcome != model.OutcomeAlreadyProcessed {
		t.Errorf("second outcome = %s", second.Outcome)
	}
	if env.published.count(model.EventBookingConfirmed) != 1 {
		t.Errorf("booking must be confirmed exactly once")
	}
}

func TestHandlePaymentEvent_ConcurrentDeliveriesConfirmOnce(t *testing.T) {
	env := newTestEnv(t)
	b := env.pending(t, 1)

	const deliveries = 20
	outcomes := make(chan model.PaymentOutcome, deliveries)
	var wg sync.WaitGroup
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.reconciler.HandlePaymentEvent(context.Background(), paymentEvent(b.ID, "evt-burst", model.PaymentSucceeded, 200))
			if err != nil {
				t.Errorf("HandlePaymentEvent: %v", err)
				return
			}
			outcomes <- res.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	applied := 0
	for o := range outcomes {
		switch o {
		case model.OutcomeApplied:
			applied++
		case model.OutcomeAlreadyProcessed:
		default:
			t.Errorf("unexpected outcome %s", o)
		}
	}
	if applied != 1 {
		t.Errorf("applied %d times, want 1", applied)
	}
	if env.published.count(model.EventBookingConfirmed) != 1 {
		t.Errorf("booking must be confirmed exactly once")
	}
	if got := env.reserved(t, b.SlotID); got != 1 {
		t.Errorf("reserved = %d, want 1", got)
	}
}

func TestHandlePaymentEvent_AmountMismatch(t *testing.T) {
	env := newTestEnv(t)
	b := env.pending(t, 1)

	res, err := env.reconciler.HandlePaymentEvent(context.Background(), paymentEvent(b.ID, "evt-short", model.PaymentSucceeded, 150))
	if err != nil {
		t.Fatalf("HandlePaymentEvent: %v", err)
	}
	if res.Outcome != model.OutcomeMismatch || res.Note == "" {
		t.Errorf("result = %+v", res)
	}
	if got := env.booking(t, b.ID); got.Status != model.BookingPending {
		t.Errorf("booking must stay pending, got %s", got.Status)
	}

	evt, err := env.reconciler.GetEvent(context.Background(), "standard", "evt-short")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if !evt.Processed || evt.Outcome != model.OutcomeMismatch || evt.Note != res.Note {
		t.Errorf("stored event = %+v", evt)
	}
}

func TestHandlePaymentEvent_Mismatches(t *testing.T) {
	env := newTestEnv(t)
	b := env.pending(t, 1)

	tests := []struct {
		name string
		evt  *model.PaymentEvent
	}{
		{"unknown booking", paymentEvent("no-such-booking", "evt-a", model.PaymentSucceeded, 200)},
		{"overpaid", paymentEvent(b.ID, "evt-b", model.PaymentSucceeded, 201)},
		{"wrong currency", &model.PaymentEvent{
			Provider: "standard", ExternalEventID: "evt-c", Type: model.PaymentSucceeded,
			BookingID: b.ID, Amount: 200, Currency: "EUR",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.reconciler.HandlePaymentEvent(context.Background(), tt.evt)
			if err != nil {
				t.Fatalf("HandlePaymentEvent: %v", err)
			}
			if res.Outcome != model.OutcomeMismatch {
				t.Errorf("outcome = %s, want mismatch", res.Outcome)
			}
		})
	}
	if got := env.booking(t, b.ID); got.Status != model.BookingPending {
		t.Errorf("booking must stay pending, got %s", got.Status)
	}
}

func TestHandlePaymentEvent_RejectedAfterCancel(t *testing.T) {
	env := newTestEnv(t)
	b := env.pending(t, 1)
	if _, err := env.bookings.Cancel(context.Background(), b.ID, b.SessionID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	res, err := env.reconciler.HandlePaymentEvent(context.Background(), paymentEvent(b.ID, "evt-late", model.PaymentSucceeded, 200))
	if err != nil {
		t.Fatalf("HandlePaymentEvent: %v", err)
	}
	if res.Outcome != model.OutcomeRejected || res.Status != model.BookingCancelled {
		t.Errorf("result = %+v", res)
	}
	if got := env.reserved(t, b.SlotID); got != 0 {
		t.Errorf("a rejected payment must not reserve capacity, reserved = %d", got)
	}
}

func TestHandlePaymentEvent_FailureAndRefundRelease(t *testing.T) {
	env := newTestEnv(t)

	failed := env.pending(t, 1)
	res, err := env.reconciler.HandlePaymentEvent(context.Background(), paymentEvent(failed.ID, "evt-f", model.PaymentFailed, 200))
	if err != nil || res.Status != model.BookingFailed {
		t.Fatalf("failure: res=%+v err=%v", res, err)
	}
	if got := env.reserved(t, failed.SlotID); got != 0 {
		t.Errorf("failed booking must release, reserved = %d", got)
	}

	refunded := env.pending(t, 1)
	if _, err := env.reconciler.HandlePaymentEvent(context.Background(), paymentEvent(refunded.ID, "evt-p", model.PaymentSucceeded, 200)); err != nil {
		t.Fatalf("payment: %v", err)
	}
	res, err = env.reconciler.HandlePaymentEvent(context.Background(), paymentEvent(refunded.ID, "evt-r", model.RefundSucceeded, 200))
	if err != nil || res.Status != model.BookingCancelled {
		t.Fatalf("refund: res=%+v err=%v", res, err)
	}
	if got := env.booking(t, refunded.ID); got.PaymentStatus != model.PaymentRefunded {
		t.Errorf("payment status = %s", got.PaymentStatus)
	}
	if got := env.reserved(t, refunded.SlotID); got != 0 {
		t.Errorf("refund must release, reserved = %d", got)
	}
}

func TestHandlePaymentEvent_InfrastructureFailureRollsBackEventRow(t *testing.T) {
	env := newTestEnv(t)
	b := env.pending(t, 1)
	evt := paymentEvent(b.ID, "evt-retry", model.PaymentSucceeded, 200)

	env.store.setBroken(true)
	_, err := env.reconciler.HandlePaymentEvent(context.Background(), evt)
	if !apperrors.HasCode(err, apperrors.CodeUnavailable) {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
	if _, err := env.reconciler.GetEvent(context.Background(), "standard", "evt-retry"); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("event row must roll back, got %v", err)
	}

	env.store.setBroken(false)
	res, err := env.reconciler.HandlePaymentEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Outcome != model.OutcomeApplied {
		t.Errorf("retry outcome = %s, want applied", res.Outcome)
	}
}

func TestHandlePaymentEvent_Malformed(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		evt  *model.PaymentEvent
	}{
		{"nil", nil},
		{"no provider", &model.PaymentEvent{ExternalEventID: "e", BookingID: "b", Type: model.PaymentSucceeded}},
		{"no event id", &model.PaymentEvent{Provider: "standard", BookingID: "b", Type: model.PaymentSucceeded}},
		{"no booking", &model.PaymentEvent{Provider: "standard", ExternalEventID: "e", Type: model.PaymentSucceeded}},
		{"negative amount", &model.PaymentEvent{Provider: "standard", ExternalEventID: "e", BookingID: "b", Type: model.PaymentSucceeded, Amount: -1}},
		{"unknown type", &model.PaymentEvent{Provider: "standard", ExternalEventID: "e", BookingID: "b", Type: "payment.pending"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.reconciler.HandlePaymentEvent(context.Background(), tt.evt)
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) || appErr.HTTPStatus != http.StatusBadRequest {
				t.Errorf("expected 400, got %v", err)
			}
		})
	}
}
