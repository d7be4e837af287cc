package mongo

import (
	"context"
	"time"

	"slotkeeper/internal/storage"
	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type eventRepo struct{ s *Store }

func eventFilter(provider, externalEventID string) bson.M {
	return bson.M{"provider": provider, "external_event_id": externalEventID}
}

// InsertPaymentEvent upserts with $setOnInsert: a duplicate-key error would
// abort an enclosing transaction, a matched upsert does not.
func (r *eventRepo) InsertPaymentEvent(ctx context.Context, e *model.PaymentEvent) error {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	res, err := r.s.events.UpdateOne(ctx,
		eventFilter(e.Provider, e.ExternalEventID),
		bson.M{"$setOnInsert": e},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return mapError("insert payment event", err)
	}
	if res.UpsertedCount == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

func (r *eventRepo) MarkPaymentEventProcessed(ctx context.Context, provider, externalEventID string, outcome model.PaymentOutcome, note string, at time.Time) error {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	res, err := r.s.events.UpdateOne(ctx, eventFilter(provider, externalEventID), bson.M{"$set": bson.M{
		"processed":    true,
		"outcome":      outcome,
		"note":         note,
		"processed_at": at,
	}})
	if err != nil {
		return mapError("mark payment event", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *eventRepo) FindPaymentEvent(ctx context.Context, provider, externalEventID string) (*model.PaymentEvent, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	var e model.PaymentEvent
	if err := r.s.events.FindOne(ctx, eventFilter(provider, externalEventID)).Decode(&e); err != nil {
		return nil, mapError("find payment event", err)
	}
	return &e, nil
}
