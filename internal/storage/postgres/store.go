// Package postgres implements storage.Store on top of pgx. Every conditional
// write is a single UPDATE or DELETE whose WHERE clause carries the
// precondition, so the row lock taken by the statement is the only
// serialization point.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"slotkeeper/internal/storage"
	"slotkeeper/pkg/clock"
	pgdb "slotkeeper/pkg/db/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool  *pgxpool.Pool
	tm    pgdb.TransactionManager
	clock clock.Clock
}

var _ storage.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, c clock.Clock) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		pool:  pool,
		tm:    pgdb.NewTransactionManager(pool),
		clock: c,
	}
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Slots() storage.SlotRepository                 { return &slotRepo{q: s.pool, clock: s.clock} }
func (s *Store) Holds() storage.HoldRepository                 { return &holdRepo{q: s.pool} }
func (s *Store) Bookings() storage.BookingRepository           { return &bookingRepo{q: s.pool} }
func (s *Store) PaymentEvents() storage.PaymentEventRepository { return &eventRepo{q: s.pool} }
func (s *Store) Groups() storage.GroupRepository               { return &groupRepo{q: s.pool} }

func (s *Store) ExecuteTransaction(ctx context.Context, fn storage.TxFunc) error {
	return s.tm.ExecuteTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txView{q: tx, clock: s.clock})
	})
}

type txView struct {
	q     querier
	clock clock.Clock
}

func (t *txView) Slots() storage.SlotRepository                 { return &slotRepo{q: t.q, clock: t.clock} }
func (t *txView) Holds() storage.HoldRepository                 { return &holdRepo{q: t.q} }
func (t *txView) Bookings() storage.BookingRepository           { return &bookingRepo{q: t.q} }
func (t *txView) PaymentEvents() storage.PaymentEventRepository { return &eventRepo{q: t.q} }
func (t *txView) Groups() storage.GroupRepository               { return &groupRepo{q: t.q} }

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrDuplicate
	}
	return fmt.Errorf("postgres %s: %w", op, err)
}

func exists(ctx context.Context, q querier, table, id string) (bool, error) {
	var found bool
	err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&found)
	return found, mapError("exists "+table, err)
}

// missingAs distinguishes a failed precondition from a missing row after a
// conditional write touched nothing.
func missingAs(ctx context.Context, q querier, table, id string, otherwise error) error {
	found, err := exists(ctx, q, table, id)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrNotFound
	}
	return otherwise
}
