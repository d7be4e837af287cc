package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"slotkeeper/internal/storage"
	"slotkeeper/pkg/model"
)

type slotRepo struct {
	s *Store
	j *journal
}

func (r slotRepo) CreateSlot(ctx context.Context, slot *model.Slot) error {
	return r.s.run(ctx, r.j, func(j *journal) error {
		if _, ok := r.s.slots[slot.ID]; ok {
			return storage.ErrDuplicate
		}
		c := *slot
		put(j, r.s.slots, slot.ID, &c)
		j.dirtySlots[slot.ID] = struct{}{}
		return nil
	})
}

func (r slotRepo) FindSlot(ctx context.Context, id string) (*model.Slot, error) {
	var out *model.Slot
	err := r.s.run(ctx, r.j, func(*journal) error {
		slot, ok := r.s.slots[id]
		if !ok {
			return storage.ErrNotFound
		}
		c := *slot
		out = &c
		return nil
	})
	return out, err
}

func (r slotRepo) ListSlots(ctx context.Context, serviceID string, limit int, offset int64) ([]*model.Slot, error) {
	var out []*model.Slot
	err := r.s.run(ctx, r.j, func(*journal) error {
		for _, slot := range r.s.slots {
			if serviceID != "" && slot.ServiceID != serviceID {
				continue
			}
			c := *slot
			out = append(out, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *model.Slot) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return page(out, limit, offset), nil
}

// Availability reads the committed snapshot without taking the store lock.
// Inside a transaction it sees the transaction's own writes instead.
func (r slotRepo) Availability(ctx context.Context, id string) (*model.Availability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.j != nil {
		slot, ok := r.s.slots[id]
		if !ok {
			return nil, storage.ErrNotFound
		}
		a := model.NewAvailability(slot, r.s.clock.Now())
		return &a, nil
	}

	v, ok := r.s.snapshots.Load(id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	a := v.(model.Availability)
	return &a, nil
}

func (r slotRepo) TryReserve(ctx context.Context, id string, units int) (bool, error) {
	var reserved bool
	err := r.s.run(ctx, r.j, func(j *journal) error {
		slot, ok := r.s.slots[id]
		if !ok {
			return storage.ErrNotFound
		}
		if slot.Reserved+units > slot.Capacity {
			return nil
		}
		c := *slot
		c.Reserved += units
		put(j, r.s.slots, id, &c)
		j.dirtySlots[id] = struct{}{}
		reserved = true
		return nil
	})
	return reserved, err
}

func (r slotRepo) Release(ctx context.Context, id string, units int) (bool, error) {
	var clamped bool
	err := r.s.run(ctx, r.j, func(j *journal) error {
		slot, ok := r.s.slots[id]
		if !ok {
			return storage.ErrNotFound
		}
		c := *slot
		clamped = c.Reserved < units
		c.Reserved = max(0, c.Reserved-units)
		put(j, r.s.slots, id, &c)
		j.dirtySlots[id] = struct{}{}
		return nil
	})
	return clamped, err
}

// LockSlot is a plain read: transactions already run under the store mutex.
func (r slotRepo) LockSlot(ctx context.Context, id string) (*model.Slot, error) {
	return r.FindSlot(ctx, id)
}

func (r slotRepo) SetCapacity(ctx context.Context, id string, capacity int) (bool, error) {
	var updated bool
	err := r.s.run(ctx, r.j, func(j *journal) error {
		slot, ok := r.s.slots[id]
		if !ok {
			return storage.ErrNotFound
		}
		if capacity < slot.Reserved {
			return nil
		}
		c := *slot
		c.Capacity = capacity
		put(j, r.s.slots, id, &c)
		j.dirtySlots[id] = struct{}{}
		updated = true
		return nil
	})
	return updated, err
}

type holdRepo struct {
	s *Store
	j *journal
}

func cloneHold(h *model.Hold) *model.Hold {
	c := *h
	if h.ConsumedAt != nil {
		t := *h.ConsumedAt
		c.ConsumedAt = &t
	}
	return &c
}

func (r holdRepo) CreateHold(ctx context.Context, hold *model.Hold) error {
	return r.s.run(ctx, r.j, func(j *journal) error {
		if _, ok := r.s.holds[hold.ID]; ok {
			return storage.ErrDuplicate
		}
		put(j, r.s.holds, hold.ID, cloneHold(hold))
		return nil
	})
}

func (r holdRepo) FindHold(ctx context.Context, id string) (*model.Hold, error) {
	var out *model.Hold
	err := r.s.run(ctx, r.j, func(*journal) error {
		h, ok := r.s.holds[id]
		if !ok {
			return storage.ErrNotFound
		}
		out = cloneHold(h)
		return nil
	})
	return out, err
}

func (r holdRepo) FindSessionHold(ctx context.Context, slotID, sessionID string) (*model.Hold, error) {
	var out *model.Hold
	err := r.s.run(ctx, r.j, func(*journal) error {
		for _, h := range r.s.holds {
			if h.SlotID != slotID || h.SessionID != sessionID || h.Consumed() {
				continue
			}
			if out == nil || h.ExpiresAt.After(out.ExpiresAt) {
				out = h
			}
		}
		if out == nil {
			return storage.ErrNotFound
		}
		out = cloneHold(out)
		return nil
	})
	return out, err
}

func (r holdRepo) ExtendHold(ctx context.Context, id string, now, expiresAt time.Time) (bool, error) {
	var extended bool
	err := r.s.run(ctx, r.j, func(j *journal) error {
		h, ok := r.s.holds[id]
		if !ok || !h.Active(now) {
			return nil
		}
		c := cloneHold(h)
		c.ExpiresAt = expiresAt
		put(j, r.s.holds, id, c)
		extended = true
		return nil
	})
	return extended, err
}

func (r holdRepo) ConsumeHold(ctx context.Context, id string, now time.Time) (bool, error) {
	var consumed bool
	err := r.s.run(ctx, r.j, func(j *journal) error {
		h, ok := r.s.holds[id]
		if !ok || !h.Active(now) {
			return nil
		}
		c := cloneHold(h)
		at := now
		c.ConsumedAt = &at
		put(j, r.s.holds, id, c)
		consumed = true
		return nil
	})
	return consumed, err
}

func (r holdRepo) DeleteHold(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.s.run(ctx, r.j, func(j *journal) error {
		deleted = remove(j, r.s.holds, id)
		return nil
	})
	return deleted, err
}

func (r holdRepo) DeleteUnconsumedHold(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.s.run(ctx, r.j, func(j *journal) error {
		h, ok := r.s.holds[id]
		if !ok || h.Consumed() {
			return nil
		}
		deleted = remove(j, r.s.holds, id)
		return nil
	})
	return deleted, err
}

func (r holdRepo) DeleteExpiredHold(ctx context.Context, id string, now time.Time) (bool, error) {
	var deleted bool
	err := r.s.run(ctx, r.j, func(j *journal) error {
		h, ok := r.s.holds[id]
		if !ok || h.Consumed() || !h.Expired(now) {
			return nil
		}
		deleted = remove(j, r.s.holds, id)
		return nil
	})
	return deleted, err
}

func (r holdRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*model.Hold, error) {
	var out []*model.Hold
	err := r.s.run(ctx, r.j, func(*journal) error {
		for _, h := range r.s.holds {
			if !h.Consumed() && h.Expired(now) {
				out = append(out, cloneHold(h))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *model.Hold) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	return page(out, limit, 0), nil
}

type bookingRepo struct {
	s *Store
	j *journal
}

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	if b.ConfirmedAt != nil {
		t := *b.ConfirmedAt
		c.ConfirmedAt = &t
	}
	return &c
}

func (r bookingRepo) CreateBooking(ctx context.Context, booking *model.Booking) error {
	return r.s.run(ctx, r.j, func(j *journal) error {
		if _, ok := r.s.bookings[booking.ID]; ok {
			return storage.ErrDuplicate
		}
		put(j, r.s.bookings, booking.ID, cloneBooking(booking))
		return nil
	})
}

func (r bookingRepo) FindBooking(ctx context.Context, id string) (*model.Booking, error) {
	var out *model.Booking
	err := r.s.run(ctx, r.j, func(*journal) error {
		b, ok := r.s.bookings[id]
		if !ok {
			return storage.ErrNotFound
		}
		out = cloneBooking(b)
		return nil
	})
	return out, err
}

func (r bookingRepo) TransitionBooking(ctx context.Context, booking *model.Booking, from model.BookingStatus) (bool, error) {
	var ok bool
	err := r.s.run(ctx, r.j, func(j *journal) error {
		stored, found := r.s.bookings[booking.ID]
		if !found {
			return storage.ErrNotFound
		}
		if stored.Status != from {
			return nil
		}
		c := cloneBooking(stored)
		c.Status = booking.Status
		c.PaymentStatus = booking.PaymentStatus
		c.HoldID = booking.HoldID
		c.UpdatedAt = booking.UpdatedAt
		c.ConfirmedAt = nil
		if booking.ConfirmedAt != nil {
			t := *booking.ConfirmedAt
			c.ConfirmedAt = &t
		}
		put(j, r.s.bookings, booking.ID, c)
		ok = true
		return nil
	})
	return ok, err
}

func (r bookingRepo) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	var out []*model.Booking
	err := r.s.run(ctx, r.j, func(*journal) error {
		for _, b := range r.s.bookings {
			if b.Status == model.BookingPending && b.PaymentDeadline.Before(now) {
				out = append(out, cloneBooking(b))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *model.Booking) int {
		return a.PaymentDeadline.Compare(b.PaymentDeadline)
	})
	return page(out, limit, 0), nil
}

func (r bookingRepo) CountBySlot(ctx context.Context, slotID string) (int64, error) {
	var n int64
	err := r.s.run(ctx, r.j, func(*journal) error {
		for _, b := range r.s.bookings {
			if b.SlotID == slotID {
				n++
			}
		}
		return nil
	})
	return n, err
}

type eventRepo struct {
	s *Store
	j *journal
}

func eventKey(provider, externalEventID string) string {
	return provider + "\x00" + externalEventID
}

func cloneEvent(e *model.PaymentEvent) *model.PaymentEvent {
	c := *e
	if e.ProcessedAt != nil {
		t := *e.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}

func (r eventRepo) InsertPaymentEvent(ctx context.Context, event *model.PaymentEvent) error {
	return r.s.run(ctx, r.j, func(j *journal) error {
		key := eventKey(event.Provider, event.ExternalEventID)
		if _, ok := r.s.events[key]; ok {
			return storage.ErrDuplicate
		}
		put(j, r.s.events, key, cloneEvent(event))
		return nil
	})
}

func (r eventRepo) MarkPaymentEventProcessed(ctx context.Context, provider, externalEventID string, outcome model.PaymentOutcome, note string, at time.Time) error {
	return r.s.run(ctx, r.j, func(j *journal) error {
		key := eventKey(provider, externalEventID)
		e, ok := r.s.events[key]
		if !ok {
			return storage.ErrNotFound
		}
		c := cloneEvent(e)
		c.Processed = true
		c.Outcome = outcome
		c.Note = note
		c.ProcessedAt = &at
		put(j, r.s.events, key, c)
		return nil
	})
}

func (r eventRepo) FindPaymentEvent(ctx context.Context, provider, externalEventID string) (*model.PaymentEvent, error) {
	var out *model.PaymentEvent
	err := r.s.run(ctx, r.j, func(*journal) error {
		e, ok := r.s.events[eventKey(provider, externalEventID)]
		if !ok {
			return storage.ErrNotFound
		}
		out = cloneEvent(e)
		return nil
	})
	return out, err
}

type groupRepo struct {
	s *Store
	j *journal
}

func cloneGroup(g *model.GroupBooking) *model.GroupBooking {
	c := *g
	c.Participants = slices.Clone(g.Participants)
	c.BookingIDs = slices.Clone(g.BookingIDs)
	return &c
}

func (r groupRepo) CreateGroup(ctx context.Context, group *model.GroupBooking) error {
	return r.s.run(ctx, r.j, func(j *journal) error {
		if _, ok := r.s.groups[group.ID]; ok {
			return storage.ErrDuplicate
		}
		put(j, r.s.groups, group.ID, cloneGroup(group))
		return nil
	})
}

func (r groupRepo) FindGroup(ctx context.Context, id string) (*model.GroupBooking, error) {
	var out *model.GroupBooking
	err := r.s.run(ctx, r.j, func(*journal) error {
		g, ok := r.s.groups[id]
		if !ok {
			return storage.ErrNotFound
		}
		out = cloneGroup(g)
		return nil
	})
	return out, err
}

// LockGroup needs no extra locking here: the transaction already owns the
// store mutex.
func (r groupRepo) LockGroup(ctx context.Context, id string) (*model.GroupBooking, error) {
	return r.FindGroup(ctx, id)
}

func (r groupRepo) SaveGroup(ctx context.Context, group *model.GroupBooking) error {
	return r.s.run(ctx, r.j, func(j *journal) error {
		stored, ok := r.s.groups[group.ID]
		if !ok {
			return storage.ErrNotFound
		}
		if stored.Version != group.Version {
			return storage.ErrConcurrentUpdate
		}
		c := cloneGroup(group)
		c.Version++
		put(j, r.s.groups, group.ID, c)
		group.Version = c.Version
		return nil
	})
}

func page[T any](items []T, limit int, offset int64) []T {
	if offset >= int64(len(items)) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
