package kafka_middleware

import (
	"context"
	"sync/atomic"
	"time"

	"slotkeeper/pkg/kafka"
)

// Metrics counts publish and consume attempts. Safe for concurrent use.
type Metrics struct {
	published       atomic.Int64
	publishFailed   atomic.Int64
	publishDuration atomic.Int64

	consumed        atomic.Int64
	consumeFailed   atomic.Int64
	consumeDuration atomic.Int64
}

type Snapshot struct {
	MessagesPublished       int64         `json:"messagesPublished"`
	MessagesPublishedFailed int64         `json:"messagesPublishedFailed"`
	AvgPublishDuration      time.Duration `json:"avgPublishDurationNs"`
	MessagesConsumed        int64         `json:"messagesConsumed"`
	MessagesConsumedFailed  int64         `json:"messagesConsumedFailed"`
	AvgConsumeDuration      time.Duration `json:"avgConsumeDurationNs"`
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		MessagesPublished:       m.published.Load(),
		MessagesPublishedFailed: m.publishFailed.Load(),
		MessagesConsumed:        m.consumed.Load(),
		MessagesConsumedFailed:  m.consumeFailed.Load(),
	}
	if n := s.MessagesPublished + s.MessagesPublishedFailed; n > 0 {
		s.AvgPublishDuration = time.Duration(m.publishDuration.Load() / n)
	}
	if n := s.MessagesConsumed + s.MessagesConsumedFailed; n > 0 {
		s.AvgConsumeDuration = time.Duration(m.consumeDuration.Load() / n)
	}
	return s
}

func (m *Metrics) ProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		m.publishDuration.Add(int64(time.Since(start)))
		if err != nil {
			m.publishFailed.Add(1)
		} else {
			m.published.Add(1)
		}
		return err
	}
}

func (m *Metrics) ConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		m.consumeDuration.Add(int64(time.Since(start)))
		if err != nil {
			m.consumeFailed.Add(1)
		} else {
			m.consumed.Add(1)
		}
		return err
	}
}
