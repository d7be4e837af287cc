package handler

import (
	"net/http"

	"slotkeeper/internal/bookings/service"
	"slotkeeper/pkg/contracts"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/session"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

type createBookingRequest struct {
	HoldID     string           `json:"holdId"`
	ClientInfo model.ClientInfo `json:"clientInfo"`
	AmountDue  int64            `json:"amountDue"`
	Currency   string           `json:"currency,omitempty"`
}

type cancelBookingRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createBookingRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	booking, err := h.service.CreateFromHold(r.Context(), service.CreateRequest{
		HoldID:    req.HoldID,
		Client:    req.ClientInfo,
		AmountDue: req.AmountDue,
		Currency:  req.Currency,
	})
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, booking.Public()); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking.Public()); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) AdminGetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "AdminGetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "AdminGetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req cancelBookingRequest
	if err := httputil.DecodeJSON(r, &req, true); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Cancel", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	sessionID, err := session.Resolve(r.Context(), req.SessionID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Cancel", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	booking, err := h.service.Cancel(r.Context(), ps.ByName("id"), sessionID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Cancel", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking.Public()); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.Complete(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Complete", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Complete", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Refund(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.Refund(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Refund", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Refund", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/bookings", h.Create)
	router.GET("/bookings/:id", h.GetByID)
	router.POST("/bookings/:id/cancel", h.Cancel)
}

func (h *BookingHandler) RegisterAdminRoutes(router *httprouter.Router, guard contracts.Guard) {
	router.GET("/admin/bookings/:id", guard(h.AdminGetByID))
	router.POST("/admin/bookings/:id/complete", guard(h.Complete))
	router.POST("/admin/bookings/:id/refund", guard(h.Refund))
}
