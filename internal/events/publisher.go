// Package events announces committed booking lifecycle changes.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
)

const (
	Source        = "slotkeeper"
	SchemaVersion = "1"
)

// Publisher is called only after the change it describes has committed.
type Publisher interface {
	Publish(ctx context.Context, evt model.BookingEvent) error
}

type nopPublisher struct{}

func NewNopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, model.BookingEvent) error { return nil }

// MessageWriter is the part of kafka.Producer the publisher needs.
type MessageWriter interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type KafkaPublisher struct {
	writer MessageWriter
	log    *logger.Logger
}

func NewKafkaPublisher(writer MessageWriter, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log}
}

// Publish keys messages by booking id so one booking's events stay ordered
// within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, evt model.BookingEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode booking event: %w", err)
	}

	msg := kafka.NewMessage().
		WithKey(evt.BookingID).
		WithRawValue(value).
		WithEventType(string(evt.Type)).
		WithSource(Source).
		WithSchemaVersion(SchemaVersion).
		WithTimestamp(evt.OccurredAt).
		Build()

	if err := p.writer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s for booking %s: %w", evt.Type, evt.BookingID, err)
	}

	p.log.Debug("Booking event published", "type", evt.Type, "booking_id", evt.BookingID, "event_id", msg.GetEventID())
	return nil
}
