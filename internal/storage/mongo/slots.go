package mongo

import (
	"context"

	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type slotRepo struct{ s *Store }

func (r *slotRepo) CreateSlot(ctx context.Context, slot *model.Slot) error {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	_, err := r.s.slots.InsertOne(ctx, slot)
	return mapError("create slot", err)
}

func (r *slotRepo) FindSlot(ctx context.Context, id string) (*model.Slot, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	var slot model.Slot
	if err := r.s.slots.FindOne(ctx, bson.M{"_id": id}).Decode(&slot); err != nil {
		return nil, mapError("find slot", err)
	}
	return &slot, nil
}

func (r *slotRepo) ListSlots(ctx context.Context, serviceID string, limit int, offset int64) ([]*model.Slot, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{}
	if serviceID != "" {
		filter["service_id"] = serviceID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.s.slots.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError("list slots", err)
	}
	defer cursor.Close(ctx)

	slots := []*model.Slot{}
	if err := cursor.All(ctx, &slots); err != nil {
		return nil, mapError("decode slots", err)
	}
	return slots, nil
}

func (r *slotRepo) Availability(ctx context.Context, id string) (*model.Availability, error) {
	slot, err := r.FindSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	a := model.NewAvailability(slot, r.s.clock.Now())
	return &a, nil
}

func (r *slotRepo) TryReserve(ctx context.Context, id string, units int) (bool, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{
		"_id": id,
		"$expr": bson.M{
			"$lte": bson.A{bson.M{"$add": bson.A{"$reserved", units}}, "$capacity"},
		},
	}
	res, err := r.s.slots.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"reserved": units}})
	if err != nil {
		return false, mapError("reserve", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, missingAs(ctx, r.s.slots, id, nil)
}

func (r *slotRepo) Release(ctx context.Context, id string, units int) (bool, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reserved": bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$reserved", units}}}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var prev model.Slot
	if err := r.s.slots.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&prev); err != nil {
		return false, mapError("release", err)
	}
	return prev.Reserved < units, nil
}

func (r *slotRepo) LockSlot(ctx context.Context, id string) (*model.Slot, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var slot model.Slot
	err := r.s.slots.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"lock_seq": 1}}, opts).Decode(&slot)
	if err != nil {
		return nil, mapError("lock slot", err)
	}
	return &slot, nil
}

func (r *slotRepo) SetCapacity(ctx context.Context, id string, capacity int) (bool, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": id, "reserved": bson.M{"$lte": capacity}}
	res, err := r.s.slots.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"capacity": capacity}})
	if err != nil {
		return false, mapError("set capacity", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, missingAs(ctx, r.s.slots, id, nil)
}
