package errors

import (
	"errors"
	"fmt"

	"slotkeeper/pkg/model"
)

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidTransition = errors.New("invalid booking transition")

	ErrSessionMismatch = errors.New("booking belongs to another session")

	ErrGroupMember = errors.New("booking is part of a group")
)

// TransitionError records which event a booking in a given status refused.
type TransitionError struct {
	BookingID string
	From      model.BookingStatus
	Event     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking %s: cannot apply %s in status %s", e.BookingID, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
