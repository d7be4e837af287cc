// Package storage defines the persistence contract shared by the memory,
// Postgres and Mongo stores.
//
// Every conditional method (TryReserve, ConsumeHold, DeleteExpiredHold,
// TransitionBooking, SaveGroup ...) is a single atomic compare-and-set in the
// backing store. Callers that need several of them to commit together run
// them through Store.ExecuteTransaction and must only touch the Tx handed to
// the callback while inside it.
package storage

import (
	"context"
	"errors"
	"time"

	"slotkeeper/pkg/model"
)

var (
	ErrNotFound         = errors.New("storage: record not found")
	ErrDuplicate        = errors.New("storage: duplicate key")
	ErrConcurrentUpdate = errors.New("storage: record changed concurrently")
)

type SlotRepository interface {
	CreateSlot(ctx context.Context, slot *model.Slot) error
	FindSlot(ctx context.Context, id string) (*model.Slot, error)
	ListSlots(ctx context.Context, serviceID string, limit int, offset int64) ([]*model.Slot, error)
	// Availability is a non-blocking read of the last committed counters.
	Availability(ctx context.Context, id string) (*model.Availability, error)
	// TryReserve adds units only if reserved+units <= capacity.
	TryReserve(ctx context.Context, id string, units int) (bool, error)
	// Release subtracts units, clamping at zero. clamped is true when the
	// counter held fewer units than requested.
	Release(ctx context.Context, id string, units int) (clamped bool, err error)
	// SetCapacity changes capacity only if the new value is >= reserved.
	SetCapacity(ctx context.Context, id string, capacity int) (bool, error)
	// LockSlot reads the slot inside a transaction and holds an exclusive
	// row lock until commit where the backend supports one. Inserts that
	// reference the slot wait for that lock.
	LockSlot(ctx context.Context, id string) (*model.Slot, error)
}

type HoldRepository interface {
	CreateHold(ctx context.Context, hold *model.Hold) error
	FindHold(ctx context.Context, id string) (*model.Hold, error)
	// FindSessionHold returns the unconsumed hold of a session on a slot.
	FindSessionHold(ctx context.Context, slotID, sessionID string) (*model.Hold, error)
	// ExtendHold moves expiresAt only if the hold is unconsumed and not
	// expired at now.
	ExtendHold(ctx context.Context, id string, now, expiresAt time.Time) (bool, error)
	// ConsumeHold marks the hold converting only if it is unconsumed and not
	// expired at now.
	ConsumeHold(ctx context.Context, id string, now time.Time) (bool, error)
	DeleteHold(ctx context.Context, id string) (bool, error)
	// DeleteUnconsumedHold deletes only if no booking has consumed the hold.
	DeleteUnconsumedHold(ctx context.Context, id string) (bool, error)
	// DeleteExpiredHold deletes only if expiresAt < now and unconsumed.
	DeleteExpiredHold(ctx context.Context, id string, now time.Time) (bool, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*model.Hold, error)
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *model.Booking) error
	FindBooking(ctx context.Context, id string) (*model.Booking, error)
	// TransitionBooking persists status, payment status, hold reference and
	// timestamps only if the stored status still equals from.
	TransitionBooking(ctx context.Context, booking *model.Booking, from model.BookingStatus) (bool, error)
	ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error)
	CountBySlot(ctx context.Context, slotID string) (int64, error)
}

type PaymentEventRepository interface {
	// InsertPaymentEvent returns ErrDuplicate when (provider, externalEventId)
	// already exists.
	InsertPaymentEvent(ctx context.Context, event *model.PaymentEvent) error
	MarkPaymentEventProcessed(ctx context.Context, provider, externalEventID string, outcome model.PaymentOutcome, note string, at time.Time) error
	FindPaymentEvent(ctx context.Context, provider, externalEventID string) (*model.PaymentEvent, error)
}

type GroupRepository interface {
	CreateGroup(ctx context.Context, group *model.GroupBooking) error
	FindGroup(ctx context.Context, id string) (*model.GroupBooking, error)
	// LockGroup reads the group for a read-modify-write inside a transaction,
	// taking a row lock where the backend supports one.
	LockGroup(ctx context.Context, id string) (*model.GroupBooking, error)
	// SaveGroup writes participants and booking ids if the stored version
	// equals group.Version, then increments group.Version.
	SaveGroup(ctx context.Context, group *model.GroupBooking) error
}

// Tx is the set of repositories bound to one unit of work.
type Tx interface {
	Slots() SlotRepository
	Holds() HoldRepository
	Bookings() BookingRepository
	PaymentEvents() PaymentEventRepository
	Groups() GroupRepository
}

type TxFunc func(ctx context.Context, tx Tx) error

// Store is a Tx whose repositories auto-commit each call, plus a way to run
// several calls atomically.
type Store interface {
	Tx
	ExecuteTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Name() string
}
