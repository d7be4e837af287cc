package model

import "time"

type Slot struct {
	ID        string    `json:"id" bson:"_id"`
	ServiceID string    `json:"serviceId" bson:"service_id" validate:"required,min=1,max=100"`
	StartTime time.Time `json:"startTime" bson:"start_time" validate:"required"`
	EndTime   time.Time `json:"endTime" bson:"end_time" validate:"required,gtfield=StartTime"`
	Capacity  int       `json:"capacity" bson:"capacity" validate:"required,min=1,max=10000"`
	Reserved  int       `json:"reserved" bson:"reserved"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// Available is the number of units that can still be held.
func (s *Slot) Available() int {
	return max(0, s.Capacity-s.Reserved)
}

// Availability is a read-only view of a slot's counters. It may lag the
// authoritative counter but is always internally consistent.
type Availability struct {
	SlotID    string    `json:"slotId"`
	Capacity  int       `json:"capacity"`
	Reserved  int       `json:"reserved"`
	Available int       `json:"available"`
	AsOf      time.Time `json:"asOf"`
}

func NewAvailability(s *Slot, asOf time.Time) Availability {
	return Availability{
		SlotID:    s.ID,
		Capacity:  s.Capacity,
		Reserved:  s.Reserved,
		Available: s.Available(),
		AsOf:      asOf,
	}
}
