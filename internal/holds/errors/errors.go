package errors

import "errors"

var (
	ErrHoldNotFound = errors.New("hold not found")

	// ErrHoldExpired covers holds past their deadline and holds that were
	// already consumed by a booking.
	ErrHoldExpired = errors.New("hold expired or already consumed")

	ErrHoldConsumed = errors.New("hold is owned by a booking")
)
