package errors

import "errors"

var (
	ErrGroupNotFound = errors.New("group not found")

	ErrGroupFull = errors.New("group has reached its maximum size")

	// ErrGroupTooLarge rejects a group whose maximum size exceeds the slot capacity.
	ErrGroupTooLarge = errors.New("group size exceeds slot capacity")

	ErrNotMember = errors.New("booking is not a participant of the group")

	ErrSessionMismatch = errors.New("group belongs to another session")
)
