package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	paymentserrors "slotkeeper/internal/payments/errors"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"
)

const (
	EnvelopeName    = "envelope"
	SignatureHeader = "X-Signature-256"
)

type envelopePayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      struct {
		BookingID   string `json:"booking_id"`
		Amount      *int64 `json:"amount"`
		Currency    string `json:"currency"`
		FailureCode string `json:"failure_code,omitempty"`
	} `json:"data"`
}

var envelopeTypes = map[string]model.PaymentEventType{
	"charge.succeeded": model.PaymentSucceeded,
	"charge.failed":    model.PaymentFailed,
	"charge.refunded":  model.RefundSucceeded,
	"refund.succeeded": model.RefundSucceeded,
}

// Envelope is a hosted-checkout style provider: the whole raw body is signed
// and the digest arrives as "sha256=<hex>" in X-Signature-256.
type Envelope struct {
	secret string
}

func NewEnvelope(secret string) *Envelope {
	return &Envelope{secret: secret}
}

func (p *Envelope) Name() string { return EnvelopeName }

func (p *Envelope) Parse(header http.Header, body []byte) (*model.PaymentEvent, error) {
	if err := verify(p.secret, body, extractSignature(header)); err != nil {
		return nil, err
	}

	var payload envelopePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentserrors.ErrMalformedPayload, err)
	}
	if payload.ID == "" || payload.Data.BookingID == "" || payload.Data.Amount == nil {
		return nil, fmt.Errorf("%w: id, data.booking_id and data.amount are required", paymentserrors.ErrMalformedPayload)
	}

	typ, ok := envelopeTypes[payload.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", paymentserrors.ErrUnsupportedEvent, payload.Type)
	}

	evt := &model.PaymentEvent{
		Provider:        EnvelopeName,
		ExternalEventID: sanitizer.SanitizeIdentifier(payload.ID),
		Type:            typ,
		BookingID:       sanitizer.SanitizeIdentifier(payload.Data.BookingID),
		Amount:          *payload.Data.Amount,
		Currency:        sanitizer.NormalizeCurrency(payload.Data.Currency),
	}
	if payload.Data.FailureCode != "" {
		evt.Note = "failure_code=" + payload.Data.FailureCode
	}
	return evt, nil
}

// SignEnvelope returns the X-Signature-256 header value for body.
func SignEnvelope(secret string, body []byte) string {
	return "sha256=" + sign(secret, body)
}

func extractSignature(header http.Header) string {
	return trimSignature(header.Get(SignatureHeader))
}

func trimSignature(value string) string {
	if signature, found := strings.CutPrefix(value, "sha256="); found {
		return signature
	}
	return value
}

// VerifyBody checks a "sha256=<hex>" or bare hex HMAC over a raw body, the
// same scheme envelope callbacks use.
func VerifyBody(secret string, body []byte, signature string) error {
	return verify(secret, body, trimSignature(signature))
}
