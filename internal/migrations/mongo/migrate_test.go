package mongo

import (
	"context"
	"os"
	"testing"

	"slotkeeper/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const testURIEnv = "SLOTKEEPER_TEST_MONGO_URI"

// partialFilterAllowed mirrors the operators a partialFilterExpression
// accepts. $exists is only valid with true.
func partialFilterAllowed(t *testing.T, filter any) {
	t.Helper()
	m, ok := filter.(bson.M)
	if !ok {
		t.Fatalf("unexpected filter type %T", filter)
	}
	for field, cond := range m {
		inner, ok := cond.(bson.M)
		if !ok {
			continue
		}
		if v, has := inner["$exists"]; has && v != true {
			t.Errorf("field %s: partial filter uses $exists: %v", field, v)
		}
	}
}

func TestIndexes_PartialFiltersAreServerValid(t *testing.T) {
	all := map[string][]mongo.IndexModel{
		SlotsCollection:         SlotsIndexes,
		HoldsCollection:         HoldsIndexes,
		BookingsCollection:      BookingsIndexes,
		PaymentEventsCollection: PaymentEventsIndexes,
		GroupsCollection:        GroupsIndexes,
	}
	for name, models := range all {
		for _, m := range models {
			if m.Options == nil || m.Options.PartialFilterExpression == nil {
				continue
			}
			t.Run(name, func(t *testing.T) {
				partialFilterAllowed(t, m.Options.PartialFilterExpression)
			})
		}
	}
}

func TestRunMigration_AgainstServer(t *testing.T) {
	uri := os.Getenv(testURIEnv)
	if uri == "" {
		t.Skipf("%s not set", testURIEnv)
	}

	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	dbName := "slotkeeper_migrate_" + uuid.NewString()[:8]
	t.Cleanup(func() { _ = client.Database(dbName).Drop(context.Background()) })

	// Twice: the second run must find everything in place.
	for i := 0; i < 2; i++ {
		if err := RunMigration(ctx, client, dbName, logger.Discard()); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	cur, err := client.Database(dbName).Collection(HoldsCollection).Indexes().List(ctx)
	if err != nil {
		t.Fatalf("list indexes: %v", err)
	}
	var specs []bson.M
	if err := cur.All(ctx, &specs); err != nil {
		t.Fatalf("decode indexes: %v", err)
	}
	found := false
	for _, spec := range specs {
		if spec["name"] == "sweep_unconsumed_expiry" {
			found = true
		}
	}
	if !found {
		t.Errorf("sweep index missing: %v", specs)
	}
}
