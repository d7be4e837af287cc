package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "slotkeeper/internal/bookings/errors"
	"slotkeeper/internal/events"
	holdsservice "slotkeeper/internal/holds/service"
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

type CreateRequest struct {
	HoldID    string           `validate:"required"`
	Client    model.ClientInfo `validate:"required"`
	AmountDue int64            `validate:"min=1"`
	Currency  string           `validate:"required,currency_code"`
}

// Change is a committed lifecycle step, handed to AfterCommit.
type Change struct {
	Booking  *model.Booking
	Released bool
}

type BookingService interface {
	CreateFromHold(ctx context.Context, req CreateRequest) (*model.Booking, error)
	Get(ctx context.Context, id string) (*model.Booking, error)
	// Cancel is the client cancel; sessionID must own the booking.
	Cancel(ctx context.Context, id, sessionID string) (*model.Booking, error)
	Complete(ctx context.Context, id string) (*model.Booking, error)
	Refund(ctx context.Context, id string) (*model.Booking, error)
	// TimeoutPayment fails a pending booking whose payment deadline passed.
	TimeoutPayment(ctx context.Context, id string) (bool, error)

	// PrepareCreate sanitizes and validates req for CreateInTx.
	PrepareCreate(req *CreateRequest) error
	// CreateInTx consumes the hold and inserts the pending booking inside tx.
	CreateInTx(ctx context.Context, tx storage.Tx, req CreateRequest) (*model.Booking, error)
	// Apply drives one lifecycle event inside tx, running its side effects
	// in the same transaction. changed is false for a no-op repeat.
	Apply(ctx context.Context, tx storage.Tx, id string, event Event) (change Change, changed bool, err error)
	// AfterCommit invalidates cached availability and publishes the
	// lifecycle event for a committed change.
	AfterCommit(ctx context.Context, change Change)
}

type bookingService struct {
	store     storage.Store
	holds     holdsservice.HoldService
	slots     slotsservice.SlotService
	publisher events.Publisher
	validator *validation.Validator
	clock     clock.Clock
	cfg       *config.Config
}

func NewBookingService(
	store storage.Store,
	holds holdsservice.HoldService,
	slots slotsservice.SlotService,
	publisher events.Publisher,
	validator *validation.Validator,
	clk clock.Clock,
	cfg *config.Config,
) BookingService {
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	return &bookingService{
		store:     store,
		holds:     holds,
		slots:     slots,
		publisher: publisher,
		validator: validator,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *bookingService) PrepareCreate(req *CreateRequest) error {
	req.HoldID = sanitizer.SanitizeIdentifier(req.HoldID)
	req.Client = sanitizer.SanitizeClientInfo(req.Client)
	req.Currency = sanitizer.NormalizeCurrency(req.Currency)
	if req.Currency == "" {
		req.Currency = s.cfg.DefaultCurrency
	}

	if err := s.validator.Struct(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "hold_id", req.HoldID, "error", err)
		return validation.ToAppError("Booking validation failed", err)
	}
	return nil
}

func (s *bookingService) CreateFromHold(ctx context.Context, req CreateRequest) (*model.Booking, error) {
	if err := s.PrepareCreate(&req); err != nil {
		return nil, err
	}

	var booking *model.Booking
	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		booking, err = s.CreateInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		s.cfg.Log.Warn("Failed to create booking", "hold_id", req.HoldID, "error", err)
		return nil, ToAppError(err, "", req.HoldID)
	}

	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"slot_id", booking.SlotID,
		"hold_id", booking.HoldID,
		"amount_due", booking.AmountDue,
		"currency", booking.Currency,
	)
	s.AfterCommit(ctx, Change{Booking: booking})
	return booking, nil
}

func (s *bookingService) CreateInTx(ctx context.Context, tx storage.Tx, req CreateRequest) (*model.Booking, error) {
	hold, err := s.holds.Consume(ctx, tx, req.HoldID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	booking := &model.Booking{
		ID:              uuid.NewString(),
		SlotID:          hold.SlotID,
		HoldID:          hold.ID,
		SessionID:       hold.SessionID,
		GroupID:         hold.GroupID,
		Client:          req.Client,
		AmountDue:       req.AmountDue,
		Currency:        req.Currency,
		Status:          model.BookingPending,
		PaymentStatus:   model.PaymentUnpaid,
		PaymentDeadline: now.Add(s.cfg.PaymentTimeout),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Bookings().CreateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to store booking: %w", err)
	}
	return booking, nil
}

func (s *bookingService) Get(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.store.Bookings().FindBooking(ctx, id)
	if err != nil {
		return nil, storage.ToAppError(err, "Booking", id)
	}
	return booking, nil
}

func (s *bookingService) Cancel(ctx context.Context, id, sessionID string) (*model.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sessionID == "" || booking.SessionID != sessionID {
		s.cfg.Log.Warn("Cancel rejected for foreign session", "id", id)
		return nil, ToAppError(bookingserrors.ErrSessionMismatch, id, "")
	}
	if booking.GroupID != "" {
		return nil, ToAppError(bookingserrors.ErrGroupMember, id, "")
	}
	return s.transition(ctx, id, EventClientCancel)
}

func (s *bookingService) Complete(ctx context.Context, id string) (*model.Booking, error) {
	return s.transition(ctx, id, EventServiceRendered)
}

func (s *bookingService) Refund(ctx context.Context, id string) (*model.Booking, error) {
	return s.transition(ctx, id, EventRefund)
}

func (s *bookingService) TimeoutPayment(ctx context.Context, id string) (bool, error) {
	var (
		change  Change
		changed bool
	)
	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		b, err := tx.Bookings().FindBooking(ctx, id)
		if err != nil {
			return err
		}
		// Paid or cancelled in the meantime.
		if b.Status != model.BookingPending || !b.PaymentDeadline.Before(s.clock.Now()) {
			return nil
		}
		change, changed, err = s.Apply(ctx, tx, id, EventPaymentTimeout)
		return err
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.cfg.Log.Info("Booking payment timed out", "id", id, "slot_id", change.Booking.SlotID)
		s.AfterCommit(ctx, change)
	}
	return changed, nil
}

func (s *bookingService) transition(ctx context.Context, id string, event Event) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	var (
		change  Change
		changed bool
	)
	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		change, changed, err = s.Apply(ctx, tx, id, event)
		return err
	})
	if err != nil {
		if !errors.Is(err, bookingserrors.ErrInvalidTransition) {
			s.cfg.Log.Error("Failed to apply booking event", "id", id, "event", event, "error", err)
		}
		return nil, ToAppError(err, id, "")
	}

	if changed {
		s.cfg.Log.Info("Booking status changed", "id", id, "event", event, "status", change.Booking.Status)
		s.AfterCommit(ctx, change)
	}
	return change.Booking, nil
}

func (s *bookingService) Apply(ctx context.Context, tx storage.Tx, id string, event Event) (Change, bool, error) {
	// A lost compare-and-set means another writer moved the booking first;
	// one re-read resolves it into a no-op, an invalid transition or a retry
	// against the new status.
	for range 2 {
		booking, err := tx.Bookings().FindBooking(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return Change{}, false, fmt.Errorf("%w: %s", bookingserrors.ErrNotFound, id)
			}
			return Change{}, false, err
		}

		t, noop, err := Next(id, booking.Status, event)
		if err != nil {
			return Change{Booking: booking}, false, err
		}
		if noop {
			return Change{Booking: booking}, false, nil
		}

		from := booking.Status
		holdID := booking.HoldID
		now := s.clock.Now()

		booking.Status = t.To
		booking.UpdatedAt = now
		if t.Payment != "" {
			booking.PaymentStatus = t.Payment
		}
		if t.To == model.BookingConfirmed {
			booking.ConfirmedAt = &now
		}
		if t.DropHold {
			booking.HoldID = ""
		}

		ok, err := tx.Bookings().TransitionBooking(ctx, booking, from)
		if err != nil {
			return Change{}, false, err
		}
		if !ok {
			continue
		}

		if t.DropHold && holdID != "" {
			if _, err := tx.Holds().DeleteHold(ctx, holdID); err != nil {
				return Change{}, false, err
			}
		}
		if t.Release {
			if err := s.slots.Release(ctx, tx, booking.SlotID); err != nil {
				return Change{}, false, err
			}
		}
		return Change{Booking: booking, Released: t.Release}, true, nil
	}
	return Change{}, false, fmt.Errorf("booking %s: %w", id, storage.ErrConcurrentUpdate)
}

func (s *bookingService) AfterCommit(ctx context.Context, change Change) {
	b := change.Booking
	if change.Released {
		s.slots.Invalidate(ctx, b.SlotID)
	}

	// The change is durable already; a lost event is logged, not surfaced.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, model.NewBookingEvent(b, s.clock.Now())); err != nil {
		s.cfg.Log.Warn("Failed to publish booking event", "id", b.ID, "status", b.Status, "error", err)
	}
}

// ToAppError translates booking, hold and slot sentinels for the HTTP
// boundary.
func ToAppError(err error, bookingID, holdID string) error {
	var te *bookingserrors.TransitionError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &te):
		return apperrors.InvalidTransition(te.BookingID, string(te.From), te.Event)
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", bookingID)
	case errors.Is(err, bookingserrors.ErrSessionMismatch):
		return apperrors.Forbidden("Booking belongs to another session")
	case errors.Is(err, bookingserrors.ErrGroupMember):
		return apperrors.Conflict("Booking belongs to a group; remove the participant from the group instead")
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", bookingID)
	}
	return holdsservice.ToAppError(err, "", holdID)
}
