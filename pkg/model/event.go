package model

import "time"

type BookingEventType string

const (
	EventBookingCreated   BookingEventType = "booking.created"
	EventBookingConfirmed BookingEventType = "booking.confirmed"
	EventBookingCancelled BookingEventType = "booking.cancelled"
	EventBookingCompleted BookingEventType = "booking.completed"
	EventBookingFailed    BookingEventType = "booking.failed"
)

// BookingEvent is published after a lifecycle change has been committed.
type BookingEvent struct {
	Type          BookingEventType `json:"type"`
	BookingID     string           `json:"bookingId"`
	SlotID        string           `json:"slotId"`
	GroupID       string           `json:"groupId,omitempty"`
	Status        BookingStatus    `json:"status"`
	PaymentStatus PaymentStatus    `json:"paymentStatus"`
	AmountDue     int64            `json:"amountDue"`
	Currency      string           `json:"currency"`
	OccurredAt    time.Time        `json:"occurredAt"`
}

// EventForStatus maps the status a booking just entered onto its event type.
func EventForStatus(status BookingStatus) BookingEventType {
	switch status {
	case BookingConfirmed:
		return EventBookingConfirmed
	case BookingCancelled:
		return EventBookingCancelled
	case BookingCompleted:
		return EventBookingCompleted
	case BookingFailed:
		return EventBookingFailed
	default:
		return EventBookingCreated
	}
}

func NewBookingEvent(b *Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:          EventForStatus(b.Status),
		BookingID:     b.ID,
		SlotID:        b.SlotID,
		GroupID:       b.GroupID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		AmountDue:     b.AmountDue,
		Currency:      b.Currency,
		OccurredAt:    at,
	}
}
