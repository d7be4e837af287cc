package errors

import "errors"

var (
	ErrBadSignature = errors.New("payment callback signature mismatch")

	ErrMissingSecret = errors.New("payment provider secret is not configured")

	ErrUnknownProvider = errors.New("unknown payment provider")

	// ErrUnsupportedEvent is a verified callback whose type the reconciler
	// has no lifecycle event for.
	ErrUnsupportedEvent = errors.New("unsupported payment event type")

	ErrMalformedPayload = errors.New("malformed payment payload")
)
