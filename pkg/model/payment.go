package model

import "time"

type PaymentEventType string

const (
	PaymentSucceeded PaymentEventType = "payment.succeeded"
	PaymentFailed    PaymentEventType = "payment.failed"
	RefundSucceeded  PaymentEventType = "refund.succeeded"
)

func (t PaymentEventType) Valid() bool {
	switch t {
	case PaymentSucceeded, PaymentFailed, RefundSucceeded:
		return true
	}
	return false
}

type PaymentOutcome string

const (
	OutcomeApplied          PaymentOutcome = "applied"
	OutcomeAlreadyProcessed PaymentOutcome = "already_processed"
	OutcomeMismatch         PaymentOutcome = "mismatch"
	OutcomeRejected         PaymentOutcome = "rejected"
)

// PaymentEvent is the durable record of one provider callback. The pair
// (Provider, ExternalEventID) is unique.
type PaymentEvent struct {
	Provider        string           `json:"provider" bson:"provider"`
	ExternalEventID string           `json:"externalEventId" bson:"external_event_id"`
	Type            PaymentEventType `json:"type" bson:"type"`
	BookingID       string           `json:"bookingId" bson:"booking_id"`
	Amount          int64            `json:"amount" bson:"amount"`
	Currency        string           `json:"currency,omitempty" bson:"currency,omitempty"`
	ReceivedAt      time.Time        `json:"receivedAt" bson:"received_at"`
	Processed       bool             `json:"processed" bson:"processed"`
	Outcome         PaymentOutcome   `json:"outcome,omitempty" bson:"outcome,omitempty"`
	Note            string           `json:"note,omitempty" bson:"note,omitempty"`
	ProcessedAt     *time.Time       `json:"processedAt,omitempty" bson:"processed_at,omitempty"`
}
