package app

import (
	"net/http"

	"slotkeeper/internal/sweeper"
	"slotkeeper/pkg/contracts"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/kafka"
	kafka_middleware "slotkeeper/pkg/kafka/middleware"
	"slotkeeper/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type StatsResponse struct {
	Store    string                     `json:"store"`
	Sweeper  sweeper.Stats              `json:"sweeper"`
	Kafka    *kafka_middleware.Snapshot `json:"kafka,omitempty"`
	Consumer *ConsumerStats             `json:"paymentConsumer,omitempty"`
}

type ConsumerStats struct {
	Lag int64 `json:"lag"`
}

// StatsHandler reports the background worker counters to operators.
type StatsHandler struct {
	storeName string
	sweeper   *sweeper.Sweeper
	metrics   *kafka_middleware.Metrics
	consumer  *kafka.Consumer
	log       *logger.Logger
}

func NewStatsHandler(storeName string, sw *sweeper.Sweeper, metrics *kafka_middleware.Metrics, consumer *kafka.Consumer, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		storeName: storeName,
		sweeper:   sw,
		metrics:   metrics,
		consumer:  consumer,
		log:       log,
	}
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := StatsResponse{
		Store:   h.storeName,
		Sweeper: h.sweeper.Stats(),
	}
	if h.metrics != nil {
		snap := h.metrics.Snapshot()
		resp.Kafka = &snap
	}
	if h.consumer != nil {
		resp.Consumer = &ConsumerStats{Lag: h.consumer.Lag()}
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Stats", "operation", "WriteSuccess", "error", err)
	}
}

func (h *StatsHandler) RegisterAdminRoutes(router *httprouter.Router, guard contracts.Guard) {
	router.GET("/admin/stats", guard(h.Stats))
}
