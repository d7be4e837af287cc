package mongo

import (
	"context"
	"time"

	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type bookingRepo struct{ s *Store }

func (r *bookingRepo) CreateBooking(ctx context.Context, b *model.Booking) error {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	_, err := r.s.bookings.InsertOne(ctx, b)
	return mapError("create booking", err)
}

func (r *bookingRepo) FindBooking(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	var b model.Booking
	if err := r.s.bookings.FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		return nil, mapError("find booking", err)
	}
	return &b, nil
}

func (r *bookingRepo) TransitionBooking(ctx context.Context, b *model.Booking, from model.BookingStatus) (bool, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	set := bson.M{
		"status":         b.Status,
		"payment_status": b.PaymentStatus,
		"hold_id":        b.HoldID,
		"updated_at":     b.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if b.ConfirmedAt != nil {
		set["confirmed_at"] = *b.ConfirmedAt
	} else {
		update["$unset"] = bson.M{"confirmed_at": ""}
	}

	res, err := r.s.bookings.UpdateOne(ctx, bson.M{"_id": b.ID, "status": from}, update)
	if err != nil {
		return false, mapError("transition booking", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, missingAs(ctx, r.s.bookings, b.ID, nil)
}

func (r *bookingRepo) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"status": model.BookingPending, "payment_deadline": bson.M{"$lt": now}}
	opts := options.Find().SetSort(bson.D{{Key: "payment_deadline", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.s.bookings.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError("list overdue bookings", err)
	}
	defer cursor.Close(ctx)

	bookings := []*model.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, mapError("decode bookings", err)
	}
	return bookings, nil
}

func (r *bookingRepo) CountBySlot(ctx context.Context, slotID string) (int64, error) {
	ctx, cancel := r.s.withTimeout(ctx)
	defer cancel()

	n, err := r.s.bookings.CountDocuments(ctx, bson.M{"slot_id": slotID})
	return n, mapError("count bookings", err)
}
