package mongo

import (
	"context"
	"time"

	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type holdRepo struct{ s *Store }

var unconsumed = bson.M{"$exists": false}

func (r *holdRepo) CreateHold(ctx context.Context, hold *model.Hold) error {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	_, err := r.s.holds.InsertOne(ctx, hold)
	return mapError("create hold", err)
}

func (r *holdRepo) FindHold(ctx context.Context, id string) (*model.Hold, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	var h model.Hold
	if err := r.s.holds.FindOne(ctx, bson.M{"_id": id}).Decode(&h); err != nil {
		return nil, mapError("find hold", err)
	}
	return &h, nil
}

func (r *holdRepo) FindSessionHold(ctx context.Context, slotID, sessionID string) (*model.Hold, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"slot_id": slotID, "session_id": sessionID, "consumed_at": unconsumed}
	opts := options.FindOne().SetSort(bson.D{{Key: "expires_at", Value: -1}})

	var h model.Hold
	if err := r.s.holds.FindOne(ctx, filter, opts).Decode(&h); err != nil {
		return nil, mapError("find session hold", err)
	}
	return &h, nil
}

func (r *holdRepo) ExtendHold(ctx context.Context, id string, now, expiresAt time.Time) (bool, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": id, "consumed_at": unconsumed, "expires_at": bson.M{"$gte": now}}
	res, err := r.s.holds.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"expires_at": expiresAt}})
	if err != nil {
		return false, mapError("extend hold", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *holdRepo) ConsumeHold(ctx context.Context, id string, now time.Time) (bool, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": id, "consumed_at": unconsumed, "expires_at": bson.M{"$gte": now}}
	res, err := r.s.holds.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"consumed_at": now}})
	if err != nil {
		return false, mapError("consume hold", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *holdRepo) DeleteHold(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	res, err := r.s.holds.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, mapError("delete hold", err)
	}
	return res.DeletedCount == 1, nil
}

func (r *holdRepo) DeleteUnconsumedHold(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	res, err := r.s.holds.DeleteOne(ctx, bson.M{"_id": id, "consumed_at": unconsumed})
	if err != nil {
		return false, mapError("delete hold", err)
	}
	return res.DeletedCount == 1, nil
}

func (r *holdRepo) DeleteExpiredHold(ctx context.Context, id string, now time.Time) (bool, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": id, "consumed_at": unconsumed, "expires_at": bson.M{"$lt": now}}
	res, err := r.s.holds.DeleteOne(ctx, filter)
	if err != nil {
		return false, mapError("expire hold", err)
	}
	return res.DeletedCount == 1, nil
}

func (r *holdRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*model.Hold, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"consumed_at": unconsumed, "expires_at": bson.M{"$lt": now}}
	opts := options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.s.holds.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError("list expired holds", err)
	}
	defer cursor.Close(ctx)

	holds := []*model.Hold{}
	if err := cursor.All(ctx, &holds); err != nil {
		return nil, mapError("decode holds", err)
	}
	return holds, nil
}
