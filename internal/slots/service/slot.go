package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	slotserrors "slotkeeper/internal/slots/errors"
	"slotkeeper/internal/storage"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"
	"slotkeeper/pkg/validation"

	"github.com/google/uuid"
)

type SlotService interface {
	Create(ctx context.Context, slot *model.Slot) error
	GetByID(ctx context.Context, id string) (*model.Slot, error)
	List(ctx context.Context, serviceID string, limit int, offset int64) ([]*model.Slot, error)
	GetAvailability(ctx context.Context, id string) (*model.Availability, error)
	UpdateCapacity(ctx context.Context, id string, capacity int) (*model.Slot, error)

	// TryReserve takes one unit inside tx. It returns ErrSlotFull or
	// ErrNotFound (wrapped) when no unit was taken.
	TryReserve(ctx context.Context, tx storage.Tx, slotID string) error
	// Release returns one unit inside tx. Releasing an empty counter is
	// logged as an invariant violation but is not an error.
	Release(ctx context.Context, tx storage.Tx, slotID string) error
	// Invalidate drops cached availability once a write has committed.
	Invalidate(ctx context.Context, slotID string)
}

type slotService struct {
	store     storage.Store
	cache     AvailabilityCache
	validator *validation.Validator
	clock     clock.Clock
	cfg       *config.Config
}

func NewSlotService(
	store storage.Store,
	cache AvailabilityCache,
	validator *validation.Validator,
	clk clock.Clock,
	cfg *config.Config,
) SlotService {
	if cache == nil {
		cache = NewNopCache()
	}
	return &slotService{
		store:     store,
		cache:     cache,
		validator: validator,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *slotService) Create(ctx context.Context, slot *model.Slot) error {
	slot.ServiceID = sanitizer.SanitizeIdentifier(slot.ServiceID)
	slot.ID = uuid.NewString()
	slot.Reserved = 0
	slot.CreatedAt = s.clock.Now().Truncate(time.Millisecond)
	slot.StartTime = slot.StartTime.UTC()
	slot.EndTime = slot.EndTime.UTC()

	if err := s.validator.Struct(slot); err != nil {
		s.cfg.Log.Warn("Slot validation failed", "error", err)
		return validation.ToAppError("Slot validation failed", err)
	}

	if err := s.store.Slots().CreateSlot(ctx, slot); err != nil {
		s.cfg.Log.Error("Failed to create slot", "error", err)
		return storage.ToAppError(err, "Slot", slot.ID)
	}

	s.cfg.Log.Info("Slot created successfully",
		"id", slot.ID,
		"service_id", slot.ServiceID,
		"capacity", slot.Capacity,
		"start_time", slot.StartTime,
	)
	return nil
}

func (s *slotService) GetByID(ctx context.Context, id string) (*model.Slot, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}

	slot, err := s.store.Slots().FindSlot(ctx, id)
	if err != nil {
		return nil, storage.ToAppError(err, "Slot", id)
	}
	return slot, nil
}

func (s *slotService) List(ctx context.Context, serviceID string, limit int, offset int64) ([]*model.Slot, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	slots, err := s.store.Slots().ListSlots(ctx, sanitizer.SanitizeIdentifier(serviceID), limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list slots", "service_id", serviceID, "error", err)
		return nil, storage.ToAppError(err, "Slot", "")
	}
	return slots, nil
}

// GetAvailability never waits on writers: it reads the cache or the last
// committed counters.
func (s *slotService) GetAvailability(ctx context.Context, id string) (*model.Availability, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}

	if a, ok := s.cache.Get(ctx, id); ok {
		return a, nil
	}

	a, err := s.store.Slots().Availability(ctx, id)
	if err != nil {
		return nil, storage.ToAppError(err, "Slot", id)
	}
	s.cache.Set(ctx, a)
	return a, nil
}

func (s *slotService) UpdateCapacity(ctx context.Context, id string, capacity int) (*model.Slot, error) {
	if err := s.validator.Var("capacity", capacity, "min=1,max=10000"); err != nil {
		return nil, validation.ToAppError("Invalid capacity", err)
	}

	var updated *model.Slot
	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		// The lock makes a concurrent booking insert either commit before the
		// count below or wait until this capacity change commits.
		if _, err := tx.Slots().LockSlot(ctx, id); err != nil {
			return err
		}

		bookings, err := tx.Bookings().CountBySlot(ctx, id)
		if err != nil {
			return err
		}
		if bookings > 0 {
			return slotserrors.ErrCapacityLocked
		}

		ok, err := tx.Slots().SetCapacity(ctx, id, capacity)
		if err != nil {
			return err
		}
		if !ok {
			return slotserrors.ErrCapacityBelowReserved
		}

		updated, err = tx.Slots().FindSlot(ctx, id)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, slotserrors.ErrCapacityLocked):
			return nil, apperrors.Conflict("Slot capacity cannot change once bookings exist")
		case errors.Is(err, slotserrors.ErrCapacityBelowReserved):
			return nil, apperrors.Conflict("Capacity cannot be lower than the units currently held")
		}
		s.cfg.Log.Error("Failed to update slot capacity", "id", id, "error", err)
		return nil, storage.ToAppError(err, "Slot", id)
	}

	s.Invalidate(ctx, id)
	s.cfg.Log.Info("Slot capacity updated", "id", id, "capacity", capacity)
	return updated, nil
}

func (s *slotService) TryReserve(ctx context.Context, tx storage.Tx, slotID string) error {
	ok, err := tx.Slots().TryReserve(ctx, slotID, 1)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, slotID)
		}
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", slotserrors.ErrSlotFull, slotID)
	}
	return nil
}

func (s *slotService) Release(ctx context.Context, tx storage.Tx, slotID string) error {
	clamped, err := tx.Slots().Release(ctx, slotID, 1)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, slotID)
		}
		return err
	}
	if clamped {
		s.cfg.Log.Error("Capacity invariant violated: released a unit from an empty slot", "slot_id", slotID)
	}
	return nil
}

func (s *slotService) Invalidate(ctx context.Context, slotID string) {
	s.cache.Invalidate(ctx, slotID)
}
