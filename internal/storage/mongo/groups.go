package mongo

import (
	"context"

	"slotkeeper/internal/storage"
	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type groupRepo struct{ s *Store }

func (r *groupRepo) CreateGroup(ctx context.Context, g *model.GroupBooking) error {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	if g.Participants == nil {
		g.Participants = []model.ClientInfo{}
	}
	if g.BookingIDs == nil {
		g.BookingIDs = []string{}
	}
	_, err := r.s.groups.InsertOne(ctx, g)
	return mapError("create group", err)
}

func (r *groupRepo) FindGroup(ctx context.Context, id string) (*model.GroupBooking, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	var g model.GroupBooking
	if err := r.s.groups.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		return nil, mapError("find group", err)
	}
	return &g, nil
}

// LockGroup bumps a lock counter so that a concurrent transaction touching
// the same group hits a write conflict and is retried by the driver.
func (r *groupRepo) LockGroup(ctx context.Context, id string) (*model.GroupBooking, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var g model.GroupBooking
	err := r.s.groups.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"lock_seq": 1}}, opts).Decode(&g)
	if err != nil {
		return nil, mapError("lock group", err)
	}
	return &g, nil
}

func (r *groupRepo) SaveGroup(ctx context.Context, g *model.GroupBooking) error {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"participants": g.Participants,
			"booking_ids":  g.BookingIDs,
			"updated_at":   g.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	res, err := r.s.groups.UpdateOne(ctx, bson.M{"_id": g.ID, "version": g.Version}, update)
	if err != nil {
		return mapError("save group", err)
	}
	if res.MatchedCount == 0 {
		return missingAs(ctx, r.s.groups, g.ID, storage.ErrConcurrentUpdate)
	}
	g.Version++
	return nil
}
