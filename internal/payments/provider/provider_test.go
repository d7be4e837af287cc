package provider

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	paymentserrors "slotkeeper/internal/payments/errors"
	"slotkeeper/pkg/model"
)

const testSecret = "whsec_test"

func standardBody(ext, booking string, amount int64, typ, signature string) []byte {
	return fmt.Appendf(nil, `{"externalEventId":%q,"bookingId":%q,"amount":%d,"currency":"pln","type":%q,"signature":%q}`,
		ext, booking, amount, typ, signature)
}

func TestStandard_Parse(t *testing.T) {
	p := NewStandard(testSecret)
	good := SignStandard(testSecret, "evt-1", "bk-1", 200, "PLN", model.PaymentSucceeded)

	tests := []struct {
		name    string
		body    []byte
		wantErr error
	}{
		{
			name: "valid signature",
			body: standardBody("evt-1", "bk-1", 200, "payment.succeeded", good),
		},
		{
			name:    "tampered amount",
			body:    standardBody("evt-1", "bk-1", 100, "payment.succeeded", good),
			wantErr: paymentserrors.ErrBadSignature,
		},
		{
			name:    "missing signature",
			body:    standardBody("evt-1", "bk-1", 200, "payment.succeeded", ""),
			wantErr: paymentserrors.ErrBadSignature,
		},
		{
			name:    "not json",
			body:    []byte("amount=200"),
			wantErr: paymentserrors.ErrMalformedPayload,
		},
		{
			name:    "missing amount",
			body:    []byte(`{"externalEventId":"evt-1","bookingId":"bk-1","signature":"x"}`),
			wantErr: paymentserrors.ErrMalformedPayload,
		},
		{
			name: "unknown type with valid signature",
			body: standardBody("evt-2", "bk-1", 200, "payment.pending",
				SignStandard(testSecret, "evt-2", "bk-1", 200, "PLN", "payment.pending")),
			wantErr: paymentserrors.ErrUnsupportedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := p.Parse(http.Header{}, tt.body)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if evt.Provider != StandardName || evt.ExternalEventID != "evt-1" || evt.BookingID != "bk-1" {
				t.Errorf("unexpected event identity: %+v", evt)
			}
			if evt.Amount != 200 || evt.Currency != "PLN" || evt.Type != model.PaymentSucceeded {
				t.Errorf("unexpected event payload: %+v", evt)
			}
		})
	}
}

func TestStandard_CurrencyIsSigned(t *testing.T) {
	p := NewStandard(testSecret)
	sig := SignStandard(testSecret, "evt-1", "bk-1", 200, "PLN", model.PaymentSucceeded)

	swapped := fmt.Appendf(nil, `{"externalEventId":"evt-1","bookingId":"bk-1","amount":200,"currency":"EUR","type":"payment.succeeded","signature":%q}`, sig)
	if _, err := p.Parse(http.Header{}, swapped); !errors.Is(err, paymentserrors.ErrBadSignature) {
		t.Fatalf("Parse() with swapped currency error = %v, want ErrBadSignature", err)
	}

	dropped := fmt.Appendf(nil, `{"externalEventId":"evt-1","bookingId":"bk-1","amount":200,"type":"payment.succeeded","signature":%q}`, sig)
	if _, err := p.Parse(http.Header{}, dropped); !errors.Is(err, paymentserrors.ErrBadSignature) {
		t.Fatalf("Parse() with dropped currency error = %v, want ErrBadSignature", err)
	}
}

func TestStandard_DefaultTypeIsSucceeded(t *testing.T) {
	p := NewStandard(testSecret)
	sig := SignStandard(testSecret, "evt-1", "bk-1", 200, "", "")
	body := fmt.Appendf(nil, `{"externalEventId":"evt-1","bookingId":"bk-1","amount":200,"signature":%q}`, sig)

	evt, err := p.Parse(http.Header{}, body)
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if evt.Type != model.PaymentSucceeded {
		t.Errorf("Type = %s, want %s", evt.Type, model.PaymentSucceeded)
	}
}

func TestStandard_MissingSecretRejectsEverything(t *testing.T) {
	p := NewStandard("")
	body := standardBody("evt-1", "bk-1", 200, "payment.succeeded", SignStandard("", "evt-1", "bk-1", 200, "PLN", ""))

	if _, err := p.Parse(http.Header{}, body); !errors.Is(err, paymentserrors.ErrMissingSecret) {
		t.Fatalf("Parse() error = %v, want ErrMissingSecret", err)
	}
}

func TestEnvelope_Parse(t *testing.T) {
	p := NewEnvelope(testSecret)
	body := []byte(`{"id":"ch_1","type":"charge.failed","created_at":"2025-03-01T09:00:00Z",` +
		`"data":{"booking_id":"bk-9","amount":4500,"currency":"eur","failure_code":"card_declined"}}`)

	tests := []struct {
		name    string
		header  string
		body    []byte
		wantErr error
	}{
		{name: "prefixed signature", header: SignEnvelope(testSecret, body), body: body},
		{name: "bare hex signature", header: SignEnvelope(testSecret, body)[len("sha256="):], body: body},
		{name: "missing header", header: "", body: body, wantErr: paymentserrors.ErrBadSignature},
		{name: "wrong secret", header: SignEnvelope("other", body), body: body, wantErr: paymentserrors.ErrBadSignature},
		{
			name:    "unsupported type",
			body:    []byte(`{"id":"ch_2","type":"charge.pending","data":{"booking_id":"bk-9","amount":1}}`),
			wantErr: paymentserrors.ErrUnsupportedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			switch {
			case tt.header != "":
				header.Set(SignatureHeader, tt.header)
			case tt.wantErr == paymentserrors.ErrUnsupportedEvent:
				header.Set(SignatureHeader, SignEnvelope(testSecret, tt.body))
			}

			evt, err := p.Parse(header, tt.body)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			want := model.PaymentEvent{
				Provider:        EnvelopeName,
				ExternalEventID: "ch_1",
				Type:            model.PaymentFailed,
				BookingID:       "bk-9",
				Amount:          4500,
				Currency:        "EUR",
				Note:            "failure_code=card_declined",
			}
			if *evt != want {
				t.Errorf("Parse() = %+v, want %+v", *evt, want)
			}
		})
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(NewStandard(testSecret), NewEnvelope(testSecret))

	if p, err := r.Get(EnvelopeName); err != nil || p.Name() != EnvelopeName {
		t.Fatalf("Get(envelope) = %v, %v", p, err)
	}
	if _, err := r.Get("paypal"); !errors.Is(err, paymentserrors.ErrUnknownProvider) {
		t.Errorf("Get(paypal) error = %v, want ErrUnknownProvider", err)
	}
	if names := r.Names(); len(names) != 2 || names[0] != EnvelopeName {
		t.Errorf("Names() = %v", names)
	}
}
