package model

import "time"

// Hold is a temporary claim on one unit of a slot's capacity.
type Hold struct {
	ID         string     `json:"holdId" bson:"_id"`
	SlotID     string     `json:"slotId" bson:"slot_id"`
	SessionID  string     `json:"sessionId" bson:"session_id"`
	GroupID    string     `json:"groupId,omitempty" bson:"group_id,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" bson:"created_at"`
	ExpiresAt  time.Time  `json:"expiresAt" bson:"expires_at"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty" bson:"consumed_at,omitempty"`
}

// Expired reports whether the hold's deadline is strictly in the past.
func (h *Hold) Expired(now time.Time) bool {
	return h.ExpiresAt.Before(now)
}

// Consumed reports whether a booking has already been created from the hold.
func (h *Hold) Consumed() bool {
	return h.ConsumedAt != nil
}

// Active is true while the hold still blocks capacity on its own, i.e. it was
// neither converted into a booking nor left to expire.
func (h *Hold) Active(now time.Time) bool {
	return !h.Consumed() && !h.Expired(now)
}
