package service

import (
	bookingserrors "slotkeeper/internal/bookings/errors"
	"slotkeeper/pkg/model"
)

type Event string

const (
	EventPaymentConfirmed Event = "payment_confirmed"
	EventPaymentFailed    Event = "payment_failed"
	EventPaymentTimeout   Event = "payment_timeout"
	EventClientCancel     Event = "client_cancel"
	EventServiceRendered  Event = "service_rendered"
	EventRefund           Event = "refund"
)

// Transition is the effect of one lifecycle event on a booking.
type Transition struct {
	To model.BookingStatus
	// Payment is left empty when the payment status does not change.
	Payment model.PaymentStatus
	// Release returns the slot unit the booking occupied.
	Release bool
	// DropHold deletes the consumed hold and clears Booking.HoldID.
	DropHold bool
}

var targets = map[Event]model.BookingStatus{
	EventPaymentConfirmed: model.BookingConfirmed,
	EventPaymentFailed:    model.BookingFailed,
	EventPaymentTimeout:   model.BookingFailed,
	EventClientCancel:     model.BookingCancelled,
	EventServiceRendered:  model.BookingCompleted,
	EventRefund:           model.BookingCancelled,
}

type edge struct {
	from  model.BookingStatus
	event Event
}

var transitions = map[edge]Transition{
	{model.BookingPending, EventPaymentConfirmed}:  {To: model.BookingConfirmed, Payment: model.PaymentPaid, DropHold: true},
	{model.BookingPending, EventPaymentFailed}:     {To: model.BookingFailed, Release: true, DropHold: true},
	{model.BookingPending, EventPaymentTimeout}:    {To: model.BookingFailed, Release: true, DropHold: true},
	{model.BookingPending, EventClientCancel}:      {To: model.BookingCancelled, Release: true, DropHold: true},
	{model.BookingConfirmed, EventServiceRendered}: {To: model.BookingCompleted},
	{model.BookingConfirmed, EventRefund}:          {To: model.BookingCancelled, Payment: model.PaymentRefunded, Release: true},
}

// Next resolves event against the current status. noop is true when the
// booking already sits in the event's target status.
func Next(bookingID string, from model.BookingStatus, event Event) (t Transition, noop bool, err error) {
	target, known := targets[event]
	if known && target == from {
		return Transition{To: from}, true, nil
	}
	t, ok := transitions[edge{from, event}]
	if !ok {
		return Transition{}, false, &bookingserrors.TransitionError{BookingID: bookingID, From: from, Event: string(event)}
	}
	return t, false, nil
}
