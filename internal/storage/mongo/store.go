// Package mongo implements storage.Store with one collection per record
// type. Conditional writes are single-document updates whose filter carries
// the precondition; multi-document units run in a session transaction.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	migrations "slotkeeper/internal/migrations/mongo"
	"slotkeeper/internal/storage"
	"slotkeeper/pkg/clock"
	mongotx "slotkeeper/pkg/db/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	txManager mongotx.TransactionManager
	clock     clock.Clock
	timeout   time.Duration

	slots    *mongo.Collection
	holds    *mongo.Collection
	bookings *mongo.Collection
	events   *mongo.Collection
	groups   *mongo.Collection
}

var _ storage.Store = (*Store)(nil)

func New(client *mongo.Client, dbName string, c clock.Clock, timeout time.Duration) *Store {
	if c == nil {
		c = clock.Real()
	}
	db := client.Database(dbName)
	return &Store{
		client:    client,
		db:        db,
		txManager: mongotx.NewTransactionManager(client),
		clock:     c,
		timeout:   timeout,
		slots:     db.Collection(migrations.SlotsCollection),
		holds:     db.Collection(migrations.HoldsCollection),
		bookings:  db.Collection(migrations.BookingsCollection),
		events:    db.Collection(migrations.PaymentEventsCollection),
		groups:    db.Collection(migrations.GroupsCollection),
	}
}

func (s *Store) Name() string { return "mongo" }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Slots() storage.SlotRepository                 { return &slotRepo{s} }
func (s *Store) Holds() storage.HoldRepository                 { return &holdRepo{s} }
func (s *Store) Bookings() storage.BookingRepository           { return &bookingRepo{s} }
func (s *Store) PaymentEvents() storage.PaymentEventRepository { return &eventRepo{s} }
func (s *Store) Groups() storage.GroupRepository               { return &groupRepo{s} }

// ExecuteTransaction hands fn the store itself: the session travels in the
// context, so the same repositories join the transaction.
func (s *Store) ExecuteTransaction(ctx context.Context, fn storage.TxFunc) error {
	return s.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return fn(sessCtx, s)
	})
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// A SessionContext cannot be wrapped without losing the session.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < s.timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	return fmt.Errorf("mongo %s: %w", op, err)
}

// missingAs distinguishes a failed precondition from a missing document
// after a conditional write matched nothing.
func missingAs(ctx context.Context, coll *mongo.Collection, id string, otherwise error) error {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return mapError("count "+coll.Name(), err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return otherwise
}
