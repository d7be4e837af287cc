package handler

import (
	"net/http"
	"time"

	"slotkeeper/internal/holds/service"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/session"

	"github.com/julienschmidt/httprouter"
)

type HoldHandler struct {
	service service.HoldService
	log     *logger.Logger
}

func NewHoldHandler(service service.HoldService, log *logger.Logger) *HoldHandler {
	return &HoldHandler{
		service: service,
		log:     log,
	}
}

type createHoldRequest struct {
	SlotID     string `json:"slotId"`
	SessionID  string `json:"sessionId,omitempty"`
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
}

type renewHoldRequest struct {
	TTLSeconds int `json:"ttlSeconds,omitempty"`
}

// holdResponse never carries the owning session id; the session is proof of
// ownership and only travels in the signed cookie.
type holdResponse struct {
	HoldID    string    `json:"holdId"`
	SlotID    string    `json:"slotId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func toResponse(h *model.Hold) holdResponse {
	return holdResponse{HoldID: h.ID, SlotID: h.SlotID, ExpiresAt: h.ExpiresAt}
}

func (h *HoldHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createHoldRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	sessionID, err := session.Resolve(r.Context(), req.SessionID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	hold, created, err := h.service.Create(r.Context(), service.CreateRequest{
		SlotID:    req.SlotID,
		SessionID: sessionID,
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if !created {
		if err := httputil.WriteSuccess(w, toResponse(hold)); err != nil {
			h.log.Error("failed to write success response", "handler", "Create", "operation", "WriteSuccess", "error", err)
		}
		return
	}
	if err := httputil.WriteCreated(w, toResponse(hold)); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *HoldHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	hold, err := h.owned(r, ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, toResponse(hold)); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *HoldHandler) Renew(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req renewHoldRequest
	if err := httputil.DecodeJSON(r, &req, true); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Renew", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if _, err := h.owned(r, ps.ByName("id")); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Renew", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	hold, err := h.service.Renew(r.Context(), ps.ByName("id"), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Renew", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, toResponse(hold)); err != nil {
		h.log.Error("failed to write success response", "handler", "Renew", "operation", "WriteSuccess", "error", err)
	}
}

func (h *HoldHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if _, err := h.owned(r, id); err != nil {
		// Cancelling a hold that is already gone stays a no-op.
		if apperrors.HasCode(err, apperrors.CodeHoldNotFound) {
			httputil.WriteNoContent(w)
			return
		}
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Cancel", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Cancel", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

// owned loads a hold and checks that the cookie session created it. A hold's
// session never changes, so the check stays valid for the follow-up write.
func (h *HoldHandler) owned(r *http.Request, id string) (*model.Hold, error) {
	hold, err := h.service.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := session.Owns(r.Context(), hold.SessionID); err != nil {
		return nil, err
	}
	return hold, nil
}

func (h *HoldHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/holds", h.Create)
	router.GET("/holds/:id", h.GetByID)
	router.PATCH("/holds/:id/renew", h.Renew)
	router.DELETE("/holds/:id", h.Cancel)
}
