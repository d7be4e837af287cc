package errors

import "errors"

var (
	ErrNotFound = errors.New("slot not found")

	ErrSlotFull = errors.New("slot has no free capacity")

	ErrCapacityLocked = errors.New("slot capacity cannot change once bookings exist")

	ErrCapacityBelowReserved = errors.New("capacity cannot be lower than reserved units")
)
