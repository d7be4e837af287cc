package service

import (
	"context"
	"errors"
	"fmt"

	bookingserrors "slotkeeper/internal/bookings/errors"
	bookingsservice "slotkeeper/internal/bookings/service"
	paymentserrors "slotkeeper/internal/payments/errors"
	"slotkeeper/internal/storage"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"
)

// Result is what a single delivery of a payment event amounted to.
type Result struct {
	Outcome   model.PaymentOutcome `json:"outcome"`
	BookingID string               `json:"bookingId"`
	Status    model.BookingStatus  `json:"status,omitempty"`
	Note      string               `json:"note,omitempty"`
}

type Reconciler interface {
	// HandlePaymentEvent records evt and drives the booking lifecycle in one
	// transaction. Redelivery of an already recorded event is a no-op.
	HandlePaymentEvent(ctx context.Context, evt *model.PaymentEvent) (Result, error)
	GetEvent(ctx context.Context, provider, externalEventID string) (*model.PaymentEvent, error)
}

type reconciler struct {
	store    storage.Store
	bookings bookingsservice.BookingService
	clock    clock.Clock
	cfg      *config.Config
}

func NewReconciler(store storage.Store, bookings bookingsservice.BookingService, clk clock.Clock, cfg *config.Config) Reconciler {
	return &reconciler{
		store:    store,
		bookings: bookings,
		clock:    clk,
		cfg:      cfg,
	}
}

var lifecycleEvents = map[model.PaymentEventType]bookingsservice.Event{
	model.PaymentSucceeded: bookingsservice.EventPaymentConfirmed,
	model.PaymentFailed:    bookingsservice.EventPaymentFailed,
	model.RefundSucceeded:  bookingsservice.EventRefund,
}

func (r *reconciler) HandlePaymentEvent(ctx context.Context, evt *model.PaymentEvent) (Result, error) {
	if err := validateEvent(evt); err != nil {
		r.cfg.Log.Warn("Rejected malformed payment event", "error", err)
		return Result{}, apperrors.InvalidInput(err.Error())
	}

	record := *evt
	record.Currency = sanitizer.NormalizeCurrency(record.Currency)
	record.ReceivedAt = r.clock.Now()
	record.Processed = false
	record.Outcome = ""
	record.ProcessedAt = nil

	var (
		res     Result
		change  bookingsservice.Change
		changed bool
	)
	err := r.store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		res = Result{BookingID: record.BookingID}
		change, changed = bookingsservice.Change{}, false

		if err := tx.PaymentEvents().InsertPaymentEvent(ctx, &record); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				res.Outcome = model.OutcomeAlreadyProcessed
				return nil
			}
			return fmt.Errorf("failed to record payment event: %w", err)
		}

		booking, err := tx.Bookings().FindBooking(ctx, record.BookingID)
		if errors.Is(err, storage.ErrNotFound) {
			return r.settle(ctx, tx, &record, &res, model.OutcomeMismatch, "unknown booking")
		}
		if err != nil {
			return err
		}
		res.Status = booking.Status

		if note := mismatch(booking, &record); note != "" {
			return r.settle(ctx, tx, &record, &res, model.OutcomeMismatch, note)
		}

		change, changed, err = r.bookings.Apply(ctx, tx, booking.ID, lifecycleEvents[record.Type])
		if errors.Is(err, bookingserrors.ErrInvalidTransition) {
			return r.settle(ctx, tx, &record, &res, model.OutcomeRejected, err.Error())
		}
		if err != nil {
			return err
		}
		res.Status = change.Booking.Status
		return r.settle(ctx, tx, &record, &res, model.OutcomeApplied, record.Note)
	})
	if err != nil {
		r.cfg.Log.Error("Failed to reconcile payment event",
			"provider", record.Provider,
			"external_event_id", record.ExternalEventID,
			"booking_id", record.BookingID,
			"error", err,
		)
		return Result{}, storage.ToAppError(err, "Booking", record.BookingID)
	}

	switch res.Outcome {
	case model.OutcomeMismatch, model.OutcomeRejected:
		r.cfg.Log.Error("Payment event needs manual review",
			"provider", record.Provider,
			"external_event_id", record.ExternalEventID,
			"booking_id", record.BookingID,
			"outcome", res.Outcome,
			"note", res.Note,
		)
	default:
		r.cfg.Log.Info("Payment event reconciled",
			"provider", record.Provider,
			"external_event_id", record.ExternalEventID,
			"booking_id", record.BookingID,
			"outcome", res.Outcome,
			"status", res.Status,
		)
	}

	if changed {
		r.bookings.AfterCommit(ctx, change)
	}
	return res, nil
}

func (r *reconciler) settle(ctx context.Context, tx storage.Tx, evt *model.PaymentEvent, res *Result, outcome model.PaymentOutcome, note string) error {
	res.Outcome = outcome
	res.Note = note
	if err := tx.PaymentEvents().MarkPaymentEventProcessed(ctx, evt.Provider, evt.ExternalEventID, outcome, note, r.clock.Now()); err != nil {
		return fmt.Errorf("failed to mark payment event processed: %w", err)
	}
	return nil
}

func (r *reconciler) GetEvent(ctx context.Context, provider, externalEventID string) (*model.PaymentEvent, error) {
	if provider == "" || externalEventID == "" {
		return nil, apperrors.InvalidInput("provider and event ID are required")
	}
	evt, err := r.store.PaymentEvents().FindPaymentEvent(ctx, provider, externalEventID)
	if err != nil {
		return nil, storage.ToAppError(err, "Payment event", externalEventID)
	}
	return evt, nil
}

func validateEvent(evt *model.PaymentEvent) error {
	switch {
	case evt == nil:
		return fmt.Errorf("%w: empty event", paymentserrors.ErrMalformedPayload)
	case evt.Provider == "":
		return fmt.Errorf("%w: provider is required", paymentserrors.ErrMalformedPayload)
	case evt.ExternalEventID == "":
		return fmt.Errorf("%w: externalEventId is required", paymentserrors.ErrMalformedPayload)
	case evt.BookingID == "":
		return fmt.Errorf("%w: bookingId is required", paymentserrors.ErrMalformedPayload)
	case evt.Amount < 0:
		return fmt.Errorf("%w: amount cannot be negative", paymentserrors.ErrMalformedPayload)
	case !evt.Type.Valid():
		return fmt.Errorf("%w: %q", paymentserrors.ErrUnsupportedEvent, evt.Type)
	}
	return nil
}

// mismatch reports why evt cannot belong to booking, or "" when it can.
// Refunds are full refunds, so every type is checked against amountDue.
func mismatch(booking *model.Booking, evt *model.PaymentEvent) string {
	if evt.Amount != booking.AmountDue {
		return fmt.Sprintf("amount %d does not match amount due %d", evt.Amount, booking.AmountDue)
	}
	if evt.Currency != "" && evt.Currency != booking.Currency {
		return fmt.Sprintf("currency %s does not match booking currency %s", evt.Currency, booking.Currency)
	}
	return ""
}
