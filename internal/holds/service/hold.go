package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	holdserrors "slotkeeper/internal/holds/errors"
	slotserrors "slotkeeper/internal/slots/errors"
	slotsservice "slotkeeper/internal/slots/service"
	"slotkeeper/internal/storage"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"
	"slotkeeper/pkg/validation"

	"github.com/google/uuid"
)

const MinHoldTTL = time.Second

type CreateRequest struct {
	SlotID    string
	SessionID string
	// TTL of zero selects the configured default.
	TTL     time.Duration
	GroupID string
}

type HoldService interface {
	// Create reserves one unit for the session. When the session already has
	// an active hold on the slot, that hold is returned with created=false.
	Create(ctx context.Context, req CreateRequest) (hold *model.Hold, created bool, err error)
	// CreateInTx reserves one unit inside tx without session dedupe. It
	// returns sentinel errors and leaves cache invalidation to the caller.
	CreateInTx(ctx context.Context, tx storage.Tx, req CreateRequest) (*model.Hold, error)
	Get(ctx context.Context, id string) (*model.Hold, error)
	Renew(ctx context.Context, id string, ttl time.Duration) (*model.Hold, error)
	// Consume marks the hold converting inside tx. A hold that is missing,
	// expired or already consumed yields ErrHoldExpired.
	Consume(ctx context.Context, tx storage.Tx, id string) (*model.Hold, error)
	Cancel(ctx context.Context, id string) error
	// Expire deletes the hold only if it is unconsumed and past its
	// deadline, releasing its unit. It reports whether this call won.
	Expire(ctx context.Context, id string) (bool, error)
}

type holdService struct {
	store     storage.Store
	slots     slotsservice.SlotService
	validator *validation.Validator
	clock     clock.Clock
	cfg       *config.Config
}

func NewHoldService(
	store storage.Store,
	slots slotsservice.SlotService,
	validator *validation.Validator,
	clk clock.Clock,
	cfg *config.Config,
) HoldService {
	return &holdService{
		store:     store,
		slots:     slots,
		validator: validator,
		clock:     clk,
		cfg:       cfg,
	}
}

// ClampTTL bounds a requested lifetime to [MinHoldTTL, max]. Zero picks def.
func ClampTTL(ttl, def, max time.Duration) time.Duration {
	if ttl == 0 {
		ttl = def
	}
	if ttl < MinHoldTTL {
		return MinHoldTTL
	}
	if ttl > max {
		return max
	}
	return ttl
}

func (s *holdService) ttl(requested time.Duration) time.Duration {
	return ClampTTL(requested, s.cfg.HoldTTL, s.cfg.MaxHoldTTL)
}

func (s *holdService) validate(req *CreateRequest) error {
	req.SlotID = sanitizer.SanitizeIdentifier(req.SlotID)
	req.SessionID = sanitizer.SanitizeIdentifier(req.SessionID)

	if req.SlotID == "" {
		return apperrors.InvalidInput("slotId is required")
	}
	if err := s.validator.Var("sessionId", req.SessionID, "required,session_token"); err != nil {
		return validation.ToAppError("Invalid session", err)
	}
	if req.TTL < 0 {
		return apperrors.InvalidInput("ttlSeconds cannot be negative")
	}
	return nil
}

func (s *holdService) Create(ctx context.Context, req CreateRequest) (*model.Hold, bool, error) {
	if err := s.validate(&req); err != nil {
		return nil, false, err
	}

	var (
		hold     *model.Hold
		existing bool
		released bool
	)
	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		now := s.clock.Now()

		prev, err := tx.Holds().FindSessionHold(ctx, req.SlotID, req.SessionID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		case prev.Active(now):
			hold, existing = prev, true
			return nil
		default:
			won, err := tx.Holds().DeleteExpiredHold(ctx, prev.ID, now)
			if err != nil {
				return err
			}
			if won {
				if err := s.slots.Release(ctx, tx, prev.SlotID); err != nil {
					return err
				}
				released = true
			}
		}

		hold, err = s.CreateInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		if !errors.Is(err, slotserrors.ErrSlotFull) {
			s.cfg.Log.Error("Failed to create hold", "slot_id", req.SlotID, "session_id", req.SessionID, "error", err)
		}
		return nil, false, ToAppError(err, req.SlotID, "")
	}

	if existing {
		s.cfg.Log.Debug("Returning existing hold for session", "hold_id", hold.ID, "slot_id", hold.SlotID)
		return hold, false, nil
	}

	s.slots.Invalidate(ctx, req.SlotID)
	s.cfg.Log.Info("Hold created",
		"hold_id", hold.ID,
		"slot_id", hold.SlotID,
		"session_id", hold.SessionID,
		"expires_at", hold.ExpiresAt,
		"replaced_expired", released,
	)
	return hold, true, nil
}

func (s *holdService) CreateInTx(ctx context.Context, tx storage.Tx, req CreateRequest) (*model.Hold, error) {
	if err := s.slots.TryReserve(ctx, tx, req.SlotID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	hold := &model.Hold{
		ID:        uuid.NewString(),
		SlotID:    req.SlotID,
		SessionID: req.SessionID,
		GroupID:   req.GroupID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl(req.TTL)),
	}
	if err := tx.Holds().CreateHold(ctx, hold); err != nil {
		return nil, fmt.Errorf("failed to store hold: %w", err)
	}
	return hold, nil
}

func (s *holdService) Get(ctx context.Context, id string) (*model.Hold, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Hold ID cannot be empty")
	}

	hold, err := s.store.Holds().FindHold(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.HoldNotFound(id)
		}
		return nil, storage.ToAppError(err, "Hold", id)
	}
	return hold, nil
}

// Renew moves expiresAt to now+ttl. A renewal never shortens a hold.
func (s *holdService) Renew(ctx context.Context, id string, ttl time.Duration) (*model.Hold, error) {
	if ttl < 0 {
		return nil, apperrors.InvalidInput("ttlSeconds cannot be negative")
	}

	hold, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if hold.Consumed() {
		return nil, apperrors.HoldExpired(id)
	}
	if hold.Expired(now) {
		if _, err := s.Expire(ctx, id); err != nil {
			s.cfg.Log.Warn("Lazy expiry during renew failed", "hold_id", id, "error", err)
		}
		return nil, apperrors.HoldExpired(id)
	}

	expiresAt := now.Add(s.ttl(ttl))
	if hold.ExpiresAt.After(expiresAt) {
		expiresAt = hold.ExpiresAt
	}

	ok, err := s.store.Holds().ExtendHold(ctx, id, now, expiresAt)
	if err != nil {
		s.cfg.Log.Error("Failed to renew hold", "hold_id", id, "error", err)
		return nil, storage.ToAppError(err, "Hold", id)
	}
	if !ok {
		// Lost to a concurrent consume, cancel or sweep.
		if _, err := s.store.Holds().FindHold(ctx, id); errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.HoldNotFound(id)
		}
		return nil, apperrors.HoldExpired(id)
	}

	hold.ExpiresAt = expiresAt
	s.cfg.Log.Info("Hold renewed", "hold_id", id, "expires_at", expiresAt)
	return hold, nil
}

func (s *holdService) Consume(ctx context.Context, tx storage.Tx, id string) (*model.Hold, error) {
	now := s.clock.Now()

	ok, err := tx.Holds().ConsumeHold(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", holdserrors.ErrHoldExpired, id)
	}

	hold, err := tx.Holds().FindHold(ctx, id)
	if err != nil {
		return nil, err
	}
	return hold, nil
}

func (s *holdService) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Hold ID cannot be empty")
	}

	var slotID string
	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		hold, err := tx.Holds().FindHold(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if hold.Consumed() {
			return holdserrors.ErrHoldConsumed
		}

		deleted, err := tx.Holds().DeleteUnconsumedHold(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return holdserrors.ErrHoldConsumed
		}
		slotID = hold.SlotID
		return s.slots.Release(ctx, tx, hold.SlotID)
	})
	if err != nil {
		return ToAppError(err, slotID, id)
	}

	if slotID == "" {
		s.cfg.Log.Debug("Cancel of unknown hold ignored", "hold_id", id)
		return nil
	}
	s.slots.Invalidate(ctx, slotID)
	s.cfg.Log.Info("Hold cancelled", "hold_id", id, "slot_id", slotID)
	return nil
}

func (s *holdService) Expire(ctx context.Context, id string) (bool, error) {
	var (
		won    bool
		slotID string
	)
	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		hold, err := tx.Holds().FindHold(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		won, err = tx.Holds().DeleteExpiredHold(ctx, id, s.clock.Now())
		if err != nil || !won {
			return err
		}
		slotID = hold.SlotID
		return s.slots.Release(ctx, tx, hold.SlotID)
	})
	if err != nil {
		return false, err
	}

	if won {
		s.slots.Invalidate(ctx, slotID)
		s.cfg.Log.Info("Hold expired", "hold_id", id, "slot_id", slotID)
	}
	return won, nil
}

// ToAppError translates hold and slot sentinels for the HTTP boundary.
func ToAppError(err error, slotID, holdID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, slotserrors.ErrSlotFull):
		return apperrors.SlotUnavailable(slotID)
	case errors.Is(err, slotserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Slot", slotID)
	case errors.Is(err, holdserrors.ErrHoldNotFound):
		return apperrors.HoldNotFound(holdID)
	case errors.Is(err, holdserrors.ErrHoldExpired):
		return apperrors.HoldExpired(holdID)
	case errors.Is(err, holdserrors.ErrHoldConsumed):
		return apperrors.Conflict("Hold is already converted into a booking; cancel the booking instead")
	}
	return storage.ToAppError(err, "Hold", holdID)
}
