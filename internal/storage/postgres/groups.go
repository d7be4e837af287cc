package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"slotkeeper/internal/storage"
	"slotkeeper/pkg/model"
)

type groupRepo struct {
	q querier
}

const groupColumns = `id, slot_id, session_id, max_size, participants, booking_ids,
	amount_per_participant, currency, version, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }) (*model.GroupBooking, error) {
	var (
		g            model.GroupBooking
		participants []byte
	)
	err := row.Scan(
		&g.ID, &g.SlotID, &g.SessionID, &g.MaxSize, &participants, &g.BookingIDs,
		&g.AmountPerParticipant, &g.Currency, &g.Version, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(participants, &g.Participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return &g, nil
}

func encodeParticipants(p []model.ClientInfo) ([]byte, error) {
	if p == nil {
		p = []model.ClientInfo{}
	}
	return json.Marshal(p)
}

func (r *groupRepo) CreateGroup(ctx context.Context, g *model.GroupBooking) error {
	participants, err := encodeParticipants(g.Participants)
	if err != nil {
		return err
	}
	bookingIDs := g.BookingIDs
	if bookingIDs == nil {
		bookingIDs = []string{}
	}
	_, err = r.q.Exec(ctx,
		`INSERT INTO group_bookings (`+groupColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		g.ID, g.SlotID, g.SessionID, g.MaxSize, participants, bookingIDs,
		g.AmountPerParticipant, g.Currency, g.Version, g.CreatedAt, g.UpdatedAt,
	)
	return mapError("create group", err)
}

func (r *groupRepo) FindGroup(ctx context.Context, id string) (*model.GroupBooking, error) {
	g, err := scanGroup(r.q.QueryRow(ctx, `SELECT `+groupColumns+` FROM group_bookings WHERE id = $1`, id))
	return g, mapError("find group", err)
}

func (r *groupRepo) LockGroup(ctx context.Context, id string) (*model.GroupBooking, error) {
	g, err := scanGroup(r.q.QueryRow(ctx, `SELECT `+groupColumns+` FROM group_bookings WHERE id = $1 FOR UPDATE`, id))
	return g, mapError("lock group", err)
}

func (r *groupRepo) SaveGroup(ctx context.Context, g *model.GroupBooking) error {
	participants, err := encodeParticipants(g.Participants)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE group_bookings
		SET participants = $2, booking_ids = $3, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $5
	`, g.ID, participants, g.BookingIDs, g.UpdatedAt, g.Version)
	if err != nil {
		return mapError("save group", err)
	}
	if tag.RowsAffected() == 0 {
		return missingAs(ctx, r.q, "group_bookings", g.ID, storage.ErrConcurrentUpdate)
	}
	g.Version++
	return nil
}
