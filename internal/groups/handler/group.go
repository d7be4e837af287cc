package handler

import (
	"net/http"

	"slotkeeper/internal/groups/service"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/session"

	"github.com/julienschmidt/httprouter"
)

type GroupHandler struct {
	service service.GroupService
	log     *logger.Logger
}

func NewGroupHandler(service service.GroupService, log *logger.Logger) *GroupHandler {
	return &GroupHandler{
		service: service,
		log:     log,
	}
}

type createGroupRequest struct {
	SlotID               string `json:"slotId"`
	MaxSize              int    `json:"maxSize"`
	AmountPerParticipant int64  `json:"amountPerParticipant"`
	Currency             string `json:"currency,omitempty"`
	SessionID            string `json:"sessionId,omitempty"`
}

type addParticipantRequest struct {
	ClientInfo model.ClientInfo `json:"clientInfo"`
}

type removeParticipantRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

type participantResponse struct {
	Booking model.BookingView `json:"booking"`
	Group   *service.View     `json:"group"`
}

// publicView strips participant contact details; anyone holding the group id
// may read it.
func publicView(v *service.View) *service.View {
	if v == nil || v.GroupBooking == nil {
		return v
	}
	g := *v.GroupBooking
	g.Participants = make([]model.ClientInfo, len(v.Participants))
	for i, p := range v.Participants {
		g.Participants[i] = model.ClientInfo{Name: p.Name}
	}
	return &service.View{GroupBooking: &g, TotalDue: v.TotalDue}
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createGroupRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	sessionID, err := session.Resolve(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	group, err := h.service.CreateGroupHold(r.Context(), service.CreateRequest{
		SlotID:               req.SlotID,
		SessionID:            sessionID,
		MaxSize:              req.MaxSize,
		AmountPerParticipant: req.AmountPerParticipant,
		Currency:             req.Currency,
	})
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, group); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *GroupHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	group, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, publicView(group)); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *GroupHandler) AddParticipant(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req addParticipantRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		h.writeError(w, "AddParticipant", err)
		return
	}

	booking, group, err := h.service.AddParticipant(r.Context(), ps.ByName("id"), req.ClientInfo)
	if err != nil {
		h.writeError(w, "AddParticipant", err)
		return
	}

	if err := httputil.WriteCreated(w, participantResponse{Booking: booking.Public(), Group: publicView(group)}); err != nil {
		h.log.Error("failed to write created response", "handler", "AddParticipant", "operation", "WriteCreated", "error", err)
	}
}

func (h *GroupHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req removeParticipantRequest
	if err := httputil.DecodeJSON(r, &req, true); err != nil {
		h.writeError(w, "RemoveParticipant", err)
		return
	}

	sessionID, err := session.Resolve(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, "RemoveParticipant", err)
		return
	}

	group, err := h.service.RemoveParticipant(r.Context(), ps.ByName("id"), ps.ByName("bookingId"), sessionID)
	if err != nil {
		h.writeError(w, "RemoveParticipant", err)
		return
	}

	if err := httputil.WriteSuccess(w, publicView(group)); err != nil {
		h.log.Error("failed to write success response", "handler", "RemoveParticipant", "operation", "WriteSuccess", "error", err)
	}
}

func (h *GroupHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *GroupHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/groups", h.Create)
	router.GET("/groups/:id", h.GetByID)
	router.POST("/groups/:id/participants", h.AddParticipant)
	router.DELETE("/groups/:id/participants/:bookingId", h.RemoveParticipant)
}
