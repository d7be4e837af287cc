package model

import (
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingFailed    BookingStatus = "failed"
)

// IsTerminal reports whether no further lifecycle event may change the status.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingCancelled, BookingCompleted, BookingFailed:
		return true
	}
	return false
}

// HoldsCapacity reports whether a booking in this status occupies a slot unit.
func (s BookingStatus) HoldsCapacity() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCompleted:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type ClientInfo struct {
	Name  string `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Email string `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty" validate:"omitempty,e164"`
}

type Booking struct {
	ID              string        `json:"bookingId" bson:"_id"`
	SlotID          string        `json:"slotId" bson:"slot_id"`
	HoldID          string        `json:"holdId,omitempty" bson:"hold_id,omitempty"`
	SessionID       string        `json:"-" bson:"session_id"`
	GroupID         string        `json:"groupId,omitempty" bson:"group_id,omitempty"`
	Client          ClientInfo    `json:"clientInfo" bson:"client_info"`
	AmountDue       int64         `json:"amountDue" bson:"amount_due"`
	Currency        string        `json:"currency" bson:"currency"`
	Status          BookingStatus `json:"status" bson:"status"`
	PaymentStatus   PaymentStatus `json:"paymentStatus" bson:"payment_status"`
	PaymentDeadline time.Time     `json:"paymentDeadline" bson:"payment_deadline"`
	CreatedAt       time.Time     `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" bson:"updated_at"`
	ConfirmedAt     *time.Time    `json:"confirmedAt,omitempty" bson:"confirmed_at,omitempty"`
}

// BookingView is the booking as public routes show it. Client contact
// details and the hold id are left out.
type BookingView struct {
	ID              string        `json:"bookingId"`
	SlotID          string        `json:"slotId"`
	GroupID         string        `json:"groupId,omitempty"`
	AmountDue       int64         `json:"amountDue"`
	Currency        string        `json:"currency"`
	Status          BookingStatus `json:"status"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	PaymentDeadline time.Time     `json:"paymentDeadline"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	ConfirmedAt     *time.Time    `json:"confirmedAt,omitempty"`
}

func (b *Booking) Public() BookingView {
	return BookingView{
		ID:              b.ID,
		SlotID:          b.SlotID,
		GroupID:         b.GroupID,
		AmountDue:       b.AmountDue,
		Currency:        b.Currency,
		Status:          b.Status,
		PaymentStatus:   b.PaymentStatus,
		PaymentDeadline: b.PaymentDeadline,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
		ConfirmedAt:     b.ConfirmedAt,
	}
}
