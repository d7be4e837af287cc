// Package consumer feeds normalized payment events from Kafka into the
// reconciler.
//
// The topic is not a trusted channel. Every message must carry a
// "sha256=<hex>" HMAC of its raw value in the signature header, keyed with
// the Kafka payment secret. Unsigned or mis-signed messages never reach the
// reconciler and go straight to the dead-letter topic. A valid signature is
// what allows the payload to name its own provider.
package consumer

import (
	"context"
	"fmt"

	"slotkeeper/internal/payments/provider"
	"slotkeeper/internal/payments/service"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/kafka"
	kafka_config "slotkeeper/pkg/kafka/config"
	kafka_middleware "slotkeeper/pkg/kafka/middleware"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
)

// DefaultProvider names events whose payload and headers carry no provider.
const DefaultProvider = "kafka"

type Handler struct {
	reconciler service.Reconciler
	secret     string
	log        *logger.Logger
}

func NewHandler(reconciler service.Reconciler, secret string, log *logger.Logger) *Handler {
	return &Handler{reconciler: reconciler, secret: secret, log: log}
}

// Handle acknowledges every outcome the reconciler settled, including
// mismatches and rejections, which are already recorded for review. Only
// failures to reach the store are retried.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	if err := provider.VerifyBody(h.secret, msg.Value, msg.Headers[kafka.HeaderSignature]); err != nil {
		h.log.Warn("Payment event signature rejected",
			"offset", msg.Offset,
			"partition", msg.Partition,
			"error", err,
		)
		return kafka.NewPermanentError("payment event signature rejected", err)
	}

	var evt model.PaymentEvent
	if err := msg.DecodeValue(&evt); err != nil {
		return kafka.NewPermanentError("failed to decode payment event", err)
	}
	if evt.Provider == "" {
		evt.Provider = msg.Headers[kafka.HeaderSource]
	}
	if evt.Provider == "" {
		evt.Provider = DefaultProvider
	}

	res, err := h.reconciler.HandlePaymentEvent(ctx, &evt)
	if err != nil {
		appErr := apperrors.AsAppError(err)
		if appErr.Retryable() || appErr.Code == apperrors.CodeConflict {
			return kafka.NewTransientError("payment event not reconciled", err)
		}
		return kafka.NewPermanentError("payment event rejected", err)
	}

	h.log.Debug("Payment event consumed",
		"external_event_id", evt.ExternalEventID,
		"booking_id", evt.BookingID,
		"outcome", res.Outcome,
		"offset", msg.Offset,
	)
	return nil
}

// New builds the payment topic consumer with logging and metrics attached.
func New(kcfg *kafka_config.Config, cfg *config.Config, reconciler service.Reconciler, metrics *kafka_middleware.Metrics) (*kafka.Consumer, error) {
	log := cfg.Log.Component("payment-consumer")
	c, err := kafka.NewConsumer(kcfg, cfg.KafkaPaymentTopic, cfg.KafkaPaymentGroup, cfg.KafkaPaymentDLQ,
		NewHandler(reconciler, cfg.KafkaPaymentSecret, log).Handle, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment consumer: %w", err)
	}
	if kcfg.EnableMiddleware {
		c.Use(kafka_middleware.LoggingConsumerMiddleware(log))
		c.Use(metrics.ConsumerMiddleware())
	}
	return c, nil
}
