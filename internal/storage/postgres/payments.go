package postgres

import (
	"context"
	"time"

	"slotkeeper/internal/storage"
	"slotkeeper/pkg/model"
)

type eventRepo struct {
	q querier
}

// InsertPaymentEvent uses ON CONFLICT DO NOTHING rather than catching the
// unique violation: a violation would abort the surrounding transaction.
func (r *eventRepo) InsertPaymentEvent(ctx context.Context, e *model.PaymentEvent) error {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO payment_events (provider, external_event_id, type, booking_id, amount, currency, processed, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (provider, external_event_id) DO NOTHING
	`, e.Provider, e.ExternalEventID, e.Type, e.BookingID, e.Amount, e.Currency, e.Processed, e.ReceivedAt)
	if err != nil {
		return mapError("insert payment event", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

func (r *eventRepo) MarkPaymentEventProcessed(ctx context.Context, provider, externalEventID string, outcome model.PaymentOutcome, note string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE payment_events SET processed = true, outcome = $3, note = $4, processed_at = $5
		WHERE provider = $1 AND external_event_id = $2
	`, provider, externalEventID, outcome, note, at)
	if err != nil {
		return mapError("mark payment event", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *eventRepo) FindPaymentEvent(ctx context.Context, provider, externalEventID string) (*model.PaymentEvent, error) {
	var e model.PaymentEvent
	err := r.q.QueryRow(ctx, `
		SELECT provider, external_event_id, type, booking_id, amount, currency, processed, outcome, note, received_at, processed_at
		FROM payment_events WHERE provider = $1 AND external_event_id = $2
	`, provider, externalEventID).Scan(
		&e.Provider, &e.ExternalEventID, &e.Type, &e.BookingID, &e.Amount, &e.Currency,
		&e.Processed, &e.Outcome, &e.Note, &e.ReceivedAt, &e.ProcessedAt,
	)
	if err != nil {
		return nil, mapError("find payment event", err)
	}
	return &e, nil
}
