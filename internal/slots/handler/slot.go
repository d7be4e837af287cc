package handler

import (
	"net/http"
	"time"

	"slotkeeper/internal/slots/service"
	"slotkeeper/pkg/contracts"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type SlotHandler struct {
	service service.SlotService
	log     *logger.Logger
}

func NewSlotHandler(service service.SlotService, log *logger.Logger) *SlotHandler {
	return &SlotHandler{
		service: service,
		log:     log,
	}
}

type createSlotRequest struct {
	ServiceID string    `json:"serviceId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Capacity  int       `json:"capacity"`
}

type updateCapacityRequest struct {
	Capacity int `json:"capacity"`
}

func (h *SlotHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createSlotRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	slot := &model.Slot{
		ServiceID: req.ServiceID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Capacity:  req.Capacity,
	}
	if err := h.service.Create(r.Context(), slot); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, slot); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *SlotHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slot, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, slot); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	slots, err := h.service.List(r.Context(), r.URL.Query().Get("serviceId"), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteList(w, slots, len(slots), limit, offset); err != nil {
		h.log.Error("failed to write list response", "handler", "List", "operation", "WriteList", "error", err)
	}
}

func (h *SlotHandler) UpdateCapacity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req updateCapacityRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "UpdateCapacity", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	slot, err := h.service.UpdateCapacity(r.Context(), ps.ByName("id"), req.Capacity)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "UpdateCapacity", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, slot); err != nil {
		h.log.Error("failed to write success response", "handler", "UpdateCapacity", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SlotHandler) Availability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a, err := h.service.GetAvailability(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Availability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, a); err != nil {
		h.log.Error("failed to write success response", "handler", "Availability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SlotHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/slots/:id/availability", h.Availability)
}

func (h *SlotHandler) RegisterAdminRoutes(router *httprouter.Router, guard contracts.Guard) {
	router.POST("/admin/slots", guard(h.Create))
	router.GET("/admin/slots", guard(h.List))
	router.GET("/admin/slots/:id", guard(h.GetByID))
	router.PATCH("/admin/slots/:id/capacity", guard(h.UpdateCapacity))
}
