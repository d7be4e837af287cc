package postgres

import (
	"context"
	"time"

	"slotkeeper/pkg/model"
)

type bookingRepo struct {
	q querier
}

const bookingColumns = `id, slot_id, hold_id, session_id, group_id, client_name, client_email, client_phone,
	amount_due, currency, status, payment_status, payment_deadline, created_at, updated_at, confirmed_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID, &b.SlotID, &b.HoldID, &b.SessionID, &b.GroupID,
		&b.Client.Name, &b.Client.Email, &b.Client.Phone,
		&b.AmountDue, &b.Currency, &b.Status, &b.PaymentStatus,
		&b.PaymentDeadline, &b.CreatedAt, &b.UpdatedAt, &b.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepo) CreateBooking(ctx context.Context, b *model.Booking) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		b.ID, b.SlotID, b.HoldID, b.SessionID, b.GroupID,
		b.Client.Name, b.Client.Email, b.Client.Phone,
		b.AmountDue, b.Currency, b.Status, b.PaymentStatus,
		b.PaymentDeadline, b.CreatedAt, b.UpdatedAt, b.ConfirmedAt,
	)
	return mapError("create booking", err)
}

func (r *bookingRepo) FindBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(r.q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	return b, mapError("find booking", err)
}

func (r *bookingRepo) TransitionBooking(ctx context.Context, b *model.Booking, from model.BookingStatus) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE bookings
		SET status = $3, payment_status = $4, hold_id = $5, updated_at = $6, confirmed_at = $7
		WHERE id = $1 AND status = $2
	`, b.ID, from, b.Status, b.PaymentStatus, b.HoldID, b.UpdatedAt, b.ConfirmedAt)
	if err != nil {
		return false, mapError("transition booking", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, missingAs(ctx, r.q, "bookings", b.ID, nil)
}

func (r *bookingRepo) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'pending' AND payment_deadline < $1
		ORDER BY payment_deadline
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, mapError("list overdue bookings", err)
	}
	defer rows.Close()

	bookings := []*model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, mapError("scan booking", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, mapError("list overdue bookings", rows.Err())
}

func (r *bookingRepo) CountBySlot(ctx context.Context, slotID string) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM bookings WHERE slot_id = $1`, slotID).Scan(&n)
	return n, mapError("count bookings", err)
}
