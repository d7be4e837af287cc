package model

import "time"

// GroupBooking ties several participant bookings to one slot. Participants
// and BookingIDs are index-aligned.
type GroupBooking struct {
	ID                   string       `json:"groupId" bson:"_id"`
	SlotID               string       `json:"slotId" bson:"slot_id"`
	SessionID            string       `json:"-" bson:"session_id"`
	MaxSize              int          `json:"maxSize" bson:"max_size"`
	Participants         []ClientInfo `json:"participants" bson:"participants"`
	BookingIDs           []string     `json:"bookingIds" bson:"booking_ids"`
	AmountPerParticipant int64        `json:"amountPerParticipant" bson:"amount_per_participant"`
	Currency             string       `json:"currency" bson:"currency"`
	Version              int64        `json:"version" bson:"version"`
	CreatedAt            time.Time    `json:"createdAt" bson:"created_at"`
	UpdatedAt            time.Time    `json:"updatedAt" bson:"updated_at"`
}

func (g *GroupBooking) Full() bool {
	return len(g.BookingIDs) >= g.MaxSize
}

// IndexOf returns the participant position of bookingID, or -1.
func (g *GroupBooking) IndexOf(bookingID string) int {
	for i, id := range g.BookingIDs {
		if id == bookingID {
			return i
		}
	}
	return -1
}
