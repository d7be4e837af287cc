package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"slotkeeper/pkg/kafka"
)

func TestMetrics_CountsOutcomes(t *testing.T) {
	m := NewMetrics()
	produce := m.ProducerMiddleware()
	consume := m.ConsumerMiddleware()
	ok := func(ctx context.Context, msg kafka.Message) error { return nil }
	fail := func(ctx context.Context, msg kafka.Message) error { return errors.New("boom") }

	_ = produce(context.Background(), kafka.Message{}, ok)
	_ = produce(context.Background(), kafka.Message{}, ok)
	_ = produce(context.Background(), kafka.Message{}, fail)
	_ = consume(context.Background(), kafka.Message{}, ok)
	_ = consume(context.Background(), kafka.Message{}, fail)

	s := m.Snapshot()
	if s.MessagesPublished != 2 || s.MessagesPublishedFailed != 1 {
		t.Errorf("publish counters = %d/%d", s.MessagesPublished, s.MessagesPublishedFailed)
	}
	if s.MessagesConsumed != 1 || s.MessagesConsumedFailed != 1 {
		t.Errorf("consume counters = %d/%d", s.MessagesConsumed, s.MessagesConsumedFailed)
	}
}
