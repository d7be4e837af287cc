package postgres

import (
	"context"
	"time"

	"slotkeeper/pkg/model"
)

type holdRepo struct {
	q querier
}

const holdColumns = `id, slot_id, session_id, group_id, created_at, expires_at, consumed_at`

func scanHold(row interface{ Scan(...any) error }) (*model.Hold, error) {
	var h model.Hold
	if err := row.Scan(&h.ID, &h.SlotID, &h.SessionID, &h.GroupID, &h.CreatedAt, &h.ExpiresAt, &h.ConsumedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *holdRepo) CreateHold(ctx context.Context, hold *model.Hold) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO holds (`+holdColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		hold.ID, hold.SlotID, hold.SessionID, hold.GroupID, hold.CreatedAt, hold.ExpiresAt, hold.ConsumedAt,
	)
	return mapError("create hold", err)
}

func (r *holdRepo) FindHold(ctx context.Context, id string) (*model.Hold, error) {
	h, err := scanHold(r.q.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1`, id))
	return h, mapError("find hold", err)
}

func (r *holdRepo) FindSessionHold(ctx context.Context, slotID, sessionID string) (*model.Hold, error) {
	h, err := scanHold(r.q.QueryRow(ctx, `
		SELECT `+holdColumns+` FROM holds
		WHERE slot_id = $1 AND session_id = $2 AND consumed_at IS NULL
		ORDER BY expires_at DESC
		LIMIT 1
	`, slotID, sessionID))
	return h, mapError("find session hold", err)
}

func (r *holdRepo) ExtendHold(ctx context.Context, id string, now, expiresAt time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE holds SET expires_at = $3
		WHERE id = $1 AND consumed_at IS NULL AND expires_at >= $2
	`, id, now, expiresAt)
	if err != nil {
		return false, mapError("extend hold", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *holdRepo) ConsumeHold(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE holds SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL AND expires_at >= $2
	`, id, now)
	if err != nil {
		return false, mapError("consume hold", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *holdRepo) DeleteHold(ctx context.Context, id string) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM holds WHERE id = $1`, id)
	if err != nil {
		return false, mapError("delete hold", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *holdRepo) DeleteUnconsumedHold(ctx context.Context, id string) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM holds WHERE id = $1 AND consumed_at IS NULL`, id)
	if err != nil {
		return false, mapError("delete hold", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *holdRepo) DeleteExpiredHold(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM holds WHERE id = $1 AND consumed_at IS NULL AND expires_at < $2`,
		id, now,
	)
	if err != nil {
		return false, mapError("expire hold", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *holdRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*model.Hold, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+holdColumns+` FROM holds
		WHERE consumed_at IS NULL AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, mapError("list expired holds", err)
	}
	defer rows.Close()

	holds := []*model.Hold{}
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, mapError("scan hold", err)
		}
		holds = append(holds, h)
	}
	return holds, mapError("list expired holds", rows.Err())
}
