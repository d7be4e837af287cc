package handler

import (
	"errors"
	"net/http"

	paymentserrors "slotkeeper/internal/payments/errors"
	"slotkeeper/internal/payments/provider"
	"slotkeeper/internal/payments/service"
	"slotkeeper/pkg/contracts"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type WebhookHandler struct {
	reconciler service.Reconciler
	providers  *provider.Registry
	log        *logger.Logger
}

func NewWebhookHandler(reconciler service.Reconciler, providers *provider.Registry, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		providers:  providers,
		log:        log,
	}
}

type ignoredResponse struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
}

func (h *WebhookHandler) Standard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.handle(w, r, provider.StandardName)
}

func (h *WebhookHandler) Named(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.handle(w, r, ps.ByName("provider"))
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, name string) {
	p, err := h.providers.Get(name)
	if err != nil {
		h.writeError(w, apperrors.NotFoundWithID("Payment provider", name))
		return
	}

	body, err := httputil.ReadBody(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	evt, err := p.Parse(r.Header, body)
	if err != nil {
		h.rejectParse(w, r, name, err)
		return
	}

	res, err := h.reconciler.HandlePaymentEvent(r.Context(), evt)
	if err != nil {
		h.writeError(w, err)
		return
	}

	switch res.Outcome {
	case model.OutcomeMismatch:
		h.writeError(w, apperrors.PaymentMismatch(res.BookingID, res.Note))
	case model.OutcomeRejected:
		h.writeError(w, apperrors.PaymentRejected(res.BookingID, res.Note))
	default:
		if err := httputil.WriteSuccess(w, res); err != nil {
			h.log.Error("failed to write success response", "handler", "Webhook", "operation", "WriteSuccess", "error", err)
		}
	}
}

func (h *WebhookHandler) rejectParse(w http.ResponseWriter, r *http.Request, name string, err error) {
	switch {
	case errors.Is(err, paymentserrors.ErrMissingSecret):
		h.log.Error("Webhook secret not configured", "provider", name)
		h.writeError(w, apperrors.Unauthorized("Invalid webhook signature"))
	case errors.Is(err, paymentserrors.ErrBadSignature):
		h.log.Warn("Webhook verification failed",
			"provider", name,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		h.writeError(w, apperrors.Unauthorized("Invalid webhook signature"))
	case errors.Is(err, paymentserrors.ErrUnsupportedEvent):
		// Verified but irrelevant; acknowledge so the provider stops retrying.
		h.log.Info("Ignoring unsupported payment event", "provider", name, "error", err)
		if writeErr := httputil.WriteSuccess(w, ignoredResponse{Outcome: "ignored", Reason: err.Error()}); writeErr != nil {
			h.log.Error("failed to write success response", "handler", "Webhook", "operation", "WriteSuccess", "error", writeErr)
		}
	default:
		if writeErr := httputil.WriteBadRequest(w, err.Error()); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Webhook", "operation", "WriteBadRequest", "error", writeErr)
		}
	}
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Webhook", "operation", "WriteError", "error", writeErr)
	}
}

func (h *WebhookHandler) GetEvent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	evt, err := h.reconciler.GetEvent(r.Context(), ps.ByName("provider"), ps.ByName("eventId"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := httputil.WriteSuccess(w, evt); err != nil {
		h.log.Error("failed to write success response", "handler", "GetEvent", "operation", "WriteSuccess", "error", err)
	}
}

func (h *WebhookHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/webhooks/payment", h.Standard)
	router.POST("/webhooks/payment/:provider", h.Named)
}

func (h *WebhookHandler) RegisterAdminRoutes(router *httprouter.Router, guard contracts.Guard) {
	router.GET("/admin/payments/:provider/:eventId", guard(h.GetEvent))
}
