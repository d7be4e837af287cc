package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
)

type mockWriter struct {
	publishFunc func(ctx context.Context, msg kafka.Message) error
}

func (m *mockWriter) Publish(ctx context.Context, msg kafka.Message) error {
	return m.publishFunc(ctx, msg)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	var sent kafka.Message
	p := NewKafkaPublisher(&mockWriter{
		publishFunc: func(ctx context.Context, msg kafka.Message) error {
			sent = msg
			return nil
		},
	}, logger.Discard())

	evt := model.BookingEvent{
		Type:       model.EventBookingConfirmed,
		BookingID:  "bk_1",
		SlotID:     "s1",
		Status:     model.BookingConfirmed,
		OccurredAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if sent.Key != "bk_1" {
		t.Errorf("key = %q, want booking id", sent.Key)
	}
	if sent.GetEventType() != string(model.EventBookingConfirmed) {
		t.Errorf("event type header = %q", sent.GetEventType())
	}
	if sent.GetEventID() == "" {
		t.Error("expected an event id header")
	}

	var decoded model.BookingEvent
	if err := sent.DecodeValue(&decoded); err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if decoded.BookingID != evt.BookingID || decoded.Status != evt.Status {
		t.Errorf("decoded %+v", decoded)
	}
}

func TestKafkaPublisher_WrapsWriterError(t *testing.T) {
	broker := errors.New("broker down")
	p := NewKafkaPublisher(&mockWriter{
		publishFunc: func(ctx context.Context, msg kafka.Message) error { return broker },
	}, logger.Discard())

	err := p.Publish(context.Background(), model.BookingEvent{Type: model.EventBookingCreated, BookingID: "b"})
	if !errors.Is(err, broker) {
		t.Errorf("expected wrapped broker error, got %v", err)
	}
}
