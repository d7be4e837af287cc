package provider

import (
	"encoding/json"
	"fmt"
	"net/http"

	paymentserrors "slotkeeper/internal/payments/errors"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"
)

const StandardName = "standard"

type standardPayload struct {
	ExternalEventID string `json:"externalEventId"`
	BookingID       string `json:"bookingId"`
	Amount          *int64 `json:"amount"`
	Currency        string `json:"currency,omitempty"`
	Type            string `json:"type,omitempty"`
	Signature       string `json:"signature"`
}

// Standard is the first-party callback format. The signature travels in the
// body and covers externalEventId|bookingId|amount|currency|type, with the
// currency upper-cased before signing.
type Standard struct {
	secret string
}

func NewStandard(secret string) *Standard {
	return &Standard{secret: secret}
}

func (p *Standard) Name() string { return StandardName }

func (p *Standard) Parse(_ http.Header, body []byte) (*model.PaymentEvent, error) {
	var payload standardPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentserrors.ErrMalformedPayload, err)
	}
	if payload.ExternalEventID == "" || payload.BookingID == "" || payload.Amount == nil {
		return nil, fmt.Errorf("%w: externalEventId, bookingId and amount are required", paymentserrors.ErrMalformedPayload)
	}

	typ := model.PaymentEventType(payload.Type)
	if typ == "" {
		typ = model.PaymentSucceeded
	}
	currency := sanitizer.NormalizeCurrency(payload.Currency)
	signed := standardSigningString(payload.ExternalEventID, payload.BookingID, *payload.Amount, currency, typ)
	if err := verify(p.secret, signed, payload.Signature); err != nil {
		return nil, err
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", paymentserrors.ErrUnsupportedEvent, typ)
	}

	return &model.PaymentEvent{
		Provider:        StandardName,
		ExternalEventID: sanitizer.SanitizeIdentifier(payload.ExternalEventID),
		Type:            typ,
		BookingID:       sanitizer.SanitizeIdentifier(payload.BookingID),
		Amount:          *payload.Amount,
		Currency:        currency,
	}, nil
}

// SignStandard computes the body signature a standard callback must carry.
func SignStandard(secret, externalEventID, bookingID string, amount int64, currency string, typ model.PaymentEventType) string {
	if typ == "" {
		typ = model.PaymentSucceeded
	}
	return sign(secret, standardSigningString(externalEventID, bookingID, amount, sanitizer.NormalizeCurrency(currency), typ))
}

func standardSigningString(externalEventID, bookingID string, amount int64, currency string, typ model.PaymentEventType) []byte {
	return fmt.Appendf(nil, "%s|%s|%d|%s|%s", externalEventID, bookingID, amount, currency, typ)
}
