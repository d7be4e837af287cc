package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"slotkeeper/internal/migrations/mongo/validators"
	"slotkeeper/pkg/logger"
)

const (
	SlotsCollection         = "slots"
	HoldsCollection         = "holds"
	BookingsCollection      = "bookings"
	PaymentEventsCollection = "payment_events"
	GroupsCollection        = "group_bookings"
)

var (
	SlotsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "service_id", Value: 1}, {Key: "start_time", Value: 1}}},
	}

	HoldsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "slot_id", Value: 1}, {Key: "session_id", Value: 1}}},
		// Unconsumed holds have no consumed_at and index as null, so the
		// sweeper's {consumed_at: {$exists: false}, expires_at: {$lt: now}}
		// scan stays on the index prefix. A partial filter cannot express
		// $exists: false.
		{
			Keys:    bson.D{{Key: "consumed_at", Value: 1}, {Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("sweep_unconsumed_expiry"),
		},
	}

	BookingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "slot_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "payment_deadline", Value: 1}}},
	}

	PaymentEventsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "external_event_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_provider_event"),
		},
		{Keys: bson.D{{Key: "booking_id", Value: 1}}},
	}

	GroupsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "slot_id", Value: 1}}},
	}
)

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	collections := map[string]struct {
		Indexes   []mongo.IndexModel
		Validator bson.M
	}{
		SlotsCollection: {
			Indexes:   SlotsIndexes,
			Validator: validators.SlotValidator,
		},
		HoldsCollection: {
			Indexes:   HoldsIndexes,
			Validator: validators.HoldValidator,
		},
		BookingsCollection: {
			Indexes:   BookingsIndexes,
			Validator: validators.BookingValidator,
		},
		PaymentEventsCollection: {
			Indexes:   PaymentEventsIndexes,
			Validator: validators.PaymentEventValidator,
		},
		GroupsCollection: {
			Indexes:   GroupsIndexes,
			Validator: validators.GroupBookingValidator,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
		log.Info("Ensured indexes", "collection", name)
	}

	log.Info("All Mongo migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	_, err := db.Collection(name).Indexes().CreateMany(ctx, models)
	return err
}
