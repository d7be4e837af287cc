package postgres

import (
	"context"
	"fmt"

	"slotkeeper/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS slots (
	id TEXT PRIMARY KEY,
	service_id TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	capacity INTEGER NOT NULL CHECK (capacity >= 1),
	reserved INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0 AND reserved <= capacity),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS holds (
	id TEXT PRIMARY KEY,
	slot_id TEXT NOT NULL REFERENCES slots(id),
	session_id TEXT NOT NULL,
	group_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	consumed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	slot_id TEXT NOT NULL REFERENCES slots(id),
	hold_id TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL,
	group_id TEXT NOT NULL DEFAULT '',
	client_name TEXT NOT NULL,
	client_email TEXT NOT NULL DEFAULT '',
	client_phone TEXT NOT NULL DEFAULT '',
	amount_due BIGINT NOT NULL CHECK (amount_due >= 0),
	currency CHAR(3) NOT NULL,
	status TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	payment_deadline TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	confirmed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS payment_events (
	provider TEXT NOT NULL,
	external_event_id TEXT NOT NULL,
	type TEXT NOT NULL,
	booking_id TEXT NOT NULL,
	amount BIGINT NOT NULL,
	currency TEXT NOT NULL DEFAULT '',
	processed BOOLEAN NOT NULL DEFAULT false,
	outcome TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	received_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	PRIMARY KEY (provider, external_event_id)
);

CREATE TABLE IF NOT EXISTS group_bookings (
	id TEXT PRIMARY KEY,
	slot_id TEXT NOT NULL REFERENCES slots(id),
	session_id TEXT NOT NULL,
	max_size INTEGER NOT NULL CHECK (max_size >= 1),
	participants JSONB NOT NULL DEFAULT '[]',
	booking_ids TEXT[] NOT NULL DEFAULT '{}',
	amount_per_participant BIGINT NOT NULL,
	currency CHAR(3) NOT NULL,
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CHECK (cardinality(booking_ids) <= max_size)
);

CREATE INDEX IF NOT EXISTS idx_slots_service_start ON slots(service_id, start_time);
CREATE INDEX IF NOT EXISTS idx_holds_slot_session ON holds(slot_id, session_id);
CREATE INDEX IF NOT EXISTS idx_holds_expires_unconsumed ON holds(expires_at) WHERE consumed_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_bookings_slot ON bookings(slot_id);
CREATE INDEX IF NOT EXISTS idx_bookings_pending_deadline ON bookings(payment_deadline) WHERE status = 'pending';
`

// RunMigration creates the relational schema. Every statement is idempotent.
func RunMigration(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	log.Info("Running Postgres migrations")
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Info("All Postgres migrations applied successfully")
	return nil
}
