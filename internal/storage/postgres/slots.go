package postgres

import (
	"context"

	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/model"
)

type slotRepo struct {
	q     querier
	clock clock.Clock
}

const slotColumns = `id, service_id, start_time, end_time, capacity, reserved, created_at`

func scanSlot(row interface{ Scan(...any) error }) (*model.Slot, error) {
	var s model.Slot
	if err := row.Scan(&s.ID, &s.ServiceID, &s.StartTime, &s.EndTime, &s.Capacity, &s.Reserved, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *slotRepo) CreateSlot(ctx context.Context, slot *model.Slot) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO slots (`+slotColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		slot.ID, slot.ServiceID, slot.StartTime, slot.EndTime, slot.Capacity, slot.Reserved, slot.CreatedAt,
	)
	return mapError("create slot", err)
}

func (r *slotRepo) FindSlot(ctx context.Context, id string) (*model.Slot, error) {
	slot, err := scanSlot(r.q.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id))
	return slot, mapError("find slot", err)
}

func (r *slotRepo) ListSlots(ctx context.Context, serviceID string, limit int, offset int64) ([]*model.Slot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+slotColumns+` FROM slots
		WHERE ($1 = '' OR service_id = $1)
		ORDER BY start_time, id
		LIMIT $2 OFFSET $3
	`, serviceID, limit, offset)
	if err != nil {
		return nil, mapError("list slots", err)
	}
	defer rows.Close()

	slots := []*model.Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, mapError("scan slot", err)
		}
		slots = append(slots, s)
	}
	return slots, mapError("list slots", rows.Err())
}

func (r *slotRepo) Availability(ctx context.Context, id string) (*model.Availability, error) {
	slot, err := r.FindSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	a := model.NewAvailability(slot, r.clock.Now())
	return &a, nil
}

func (r *slotRepo) LockSlot(ctx context.Context, id string) (*model.Slot, error) {
	slot, err := scanSlot(r.q.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id))
	return slot, mapError("lock slot", err)
}

func (r *slotRepo) TryReserve(ctx context.Context, id string, units int) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE slots SET reserved = reserved + $2 WHERE id = $1 AND reserved + $2 <= capacity`,
		id, units,
	)
	if err != nil {
		return false, mapError("reserve", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, missingAs(ctx, r.q, "slots", id, nil)
}

func (r *slotRepo) Release(ctx context.Context, id string, units int) (bool, error) {
	var previous int
	err := r.q.QueryRow(ctx, `
		WITH prev AS (
			SELECT id, reserved FROM slots WHERE id = $1 FOR UPDATE
		)
		UPDATE slots s SET reserved = GREATEST(s.reserved - $2, 0)
		FROM prev WHERE s.id = prev.id
		RETURNING prev.reserved
	`, id, units).Scan(&previous)
	if err != nil {
		return false, mapError("release", err)
	}
	return previous < units, nil
}

func (r *slotRepo) SetCapacity(ctx context.Context, id string, capacity int) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE slots SET capacity = $2 WHERE id = $1 AND reserved <= $2`,
		id, capacity,
	)
	if err != nil {
		return false, mapError("set capacity", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, missingAs(ctx, r.q, "slots", id, nil)
}
