// Package memory is a single-process implementation of storage.Store.
//
// A transaction holds the store mutex for its whole duration and records an
// undo entry for every write, so a failing callback leaves no trace.
// Availability reads never take the mutex: committed slot counters are
// published as immutable snapshots.
package memory

import (
	"context"
	"sync"

	"slotkeeper/internal/storage"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/model"
)

type Store struct {
	mu       sync.Mutex
	clock    clock.Clock
	slots    map[string]*model.Slot
	holds    map[string]*model.Hold
	bookings map[string]*model.Booking
	events   map[string]*model.PaymentEvent
	groups   map[string]*model.GroupBooking

	snapshots sync.Map // slot id -> model.Availability
}

var _ storage.Store = (*Store)(nil)

func New(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		clock:    c,
		slots:    make(map[string]*model.Slot),
		holds:    make(map[string]*model.Hold),
		bookings: make(map[string]*model.Booking),
		events:   make(map[string]*model.PaymentEvent),
		groups:   make(map[string]*model.GroupBooking),
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Slots() storage.SlotRepository                 { return slotRepo{s: s} }
func (s *Store) Holds() storage.HoldRepository                 { return holdRepo{s: s} }
func (s *Store) Bookings() storage.BookingRepository           { return bookingRepo{s: s} }
func (s *Store) PaymentEvents() storage.PaymentEventRepository { return eventRepo{s: s} }
func (s *Store) Groups() storage.GroupRepository               { return groupRepo{s: s} }

func (s *Store) ExecuteTransaction(ctx context.Context, fn storage.TxFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j := newJournal()
	defer func() {
		if p := recover(); p != nil {
			j.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &txView{s: s, j: j}); err != nil {
		j.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		j.rollback()
		return err
	}
	s.commit(j)
	return nil
}

// run executes fn inside the caller's transaction, or as its own
// single-statement transaction when j is nil.
func (s *Store) run(ctx context.Context, j *journal, fn func(j *journal) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j != nil {
		return fn(j)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j = newJournal()
	if err := fn(j); err != nil {
		j.rollback()
		return err
	}
	s.commit(j)
	return nil
}

func (s *Store) commit(j *journal) {
	now := s.clock.Now()
	for id := range j.dirtySlots {
		if slot, ok := s.slots[id]; ok {
			s.snapshots.Store(id, model.NewAvailability(slot, now))
		} else {
			s.snapshots.Delete(id)
		}
	}
}

type txView struct {
	s *Store
	j *journal
}

func (t *txView) Slots() storage.SlotRepository                 { return slotRepo{s: t.s, j: t.j} }
func (t *txView) Holds() storage.HoldRepository                 { return holdRepo{s: t.s, j: t.j} }
func (t *txView) Bookings() storage.BookingRepository           { return bookingRepo{s: t.s, j: t.j} }
func (t *txView) PaymentEvents() storage.PaymentEventRepository { return eventRepo{s: t.s, j: t.j} }
func (t *txView) Groups() storage.GroupRepository               { return groupRepo{s: t.s, j: t.j} }

type journal struct {
	undo       []func()
	dirtySlots map[string]struct{}
}

func newJournal() *journal {
	return &journal{dirtySlots: make(map[string]struct{})}
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// put stores v under key and records how to restore the previous value.
// Stored values are never mutated in place, so restoring the old pointer is
// enough to undo.
func put[T any](j *journal, m map[string]*T, key string, v *T) {
	prev, existed := m[key]
	j.undo = append(j.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	m[key] = v
}

func remove[T any](j *journal, m map[string]*T, key string) bool {
	prev, existed := m[key]
	if !existed {
		return false
	}
	j.undo = append(j.undo, func() { m[key] = prev })
	delete(m, key)
	return true
}
