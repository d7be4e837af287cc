package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"slotkeeper/internal/groups/service"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/session"

	"github.com/julienschmidt/httprouter"
)

type mockGroupService struct {
	createFunc func(ctx context.Context, req service.CreateRequest) (*service.View, error)
	addFunc    func(ctx context.Context, groupID string, client model.ClientInfo) (*model.Booking, *service.View, error)
	removeFunc func(ctx context.Context, groupID, bookingID, sessionID string) (*service.View, error)
}

func (m *mockGroupService) CreateGroupHold(ctx context.Context, req service.CreateRequest) (*service.View, error) {
	return m.createFunc(ctx, req)
}

func (m *mockGroupService) Get(ctx context.Context, id string) (*service.View, error) {
	return nil, apperrors.NotFoundWithID("Group", id)
}

func (m *mockGroupService) AddParticipant(ctx context.Context, groupID string, client model.ClientInfo) (*model.Booking, *service.View, error) {
	return m.addFunc(ctx, groupID, client)
}

func (m *mockGroupService) RemoveParticipant(ctx context.Context, groupID, bookingID, sessionID string) (*service.View, error) {
	return m.removeFunc(ctx, groupID, bookingID, sessionID)
}

func newRouter(svc service.GroupService) *httprouter.Router {
	router := httprouter.New()
	NewGroupHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func TestCreate_UsesCookieSession(t *testing.T) {
	var got service.CreateRequest
	router := newRouter(&mockGroupService{
		createFunc: func(ctx context.Context, req service.CreateRequest) (*service.View, error) {
			got = req
			g := &model.GroupBooking{ID: "g1", SlotID: req.SlotID, MaxSize: req.MaxSize}
			return &service.View{GroupBooking: g}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/groups", strings.NewReader(`{"slotId":"s1","maxSize":3,"amountPerParticipant":150}`))
	req = req.WithContext(session.WithID(req.Context(), "cookie-sess"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got.SessionID != "cookie-sess" || got.MaxSize != 3 {
		t.Errorf("request = %+v", got)
	}
	if !strings.Contains(w.Body.String(), `"groupId":"g1"`) || !strings.Contains(w.Body.String(), `"totalDue":0`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestAddParticipant(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
	}{
		{"added", nil, http.StatusCreated},
		{"group full", apperrors.GroupFull("g1", 2), http.StatusConflict},
		{"slot full", apperrors.SlotUnavailable("s1"), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&mockGroupService{
				addFunc: func(ctx context.Context, groupID string, client model.ClientInfo) (*model.Booking, *service.View, error) {
					if tt.err != nil {
						return nil, nil, tt.err
					}
					g := &model.GroupBooking{ID: groupID, BookingIDs: []string{"bk1"}, AmountPerParticipant: 150}
					return &model.Booking{ID: "bk1", GroupID: groupID, Client: client}, &service.View{GroupBooking: g, TotalDue: 150}, nil
				},
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/groups/g1/participants", strings.NewReader(`{"clientInfo":{"name":"Ola"}}`)))
			if w.Code != tt.expectCode {
				t.Fatalf("expected %d, got %d: %s", tt.expectCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestRemoveParticipant(t *testing.T) {
	var gotGroup, gotBooking, gotSession string
	router := newRouter(&mockGroupService{
		removeFunc: func(ctx context.Context, groupID, bookingID, sessionID string) (*service.View, error) {
			gotGroup, gotBooking, gotSession = groupID, bookingID, sessionID
			return &service.View{GroupBooking: &model.GroupBooking{ID: groupID}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/groups/g1/participants/bk1", strings.NewReader(`{"sessionId":"organizer"}`))
	req = req.WithContext(session.WithID(req.Context(), "organizer"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotGroup != "g1" || gotBooking != "bk1" || gotSession != "organizer" {
		t.Errorf("got %s/%s/%s", gotGroup, gotBooking, gotSession)
	}
}

func TestRemoveParticipant_ForeignSessionClaimIsForbidden(t *testing.T) {
	called := false
	router := newRouter(&mockGroupService{
		removeFunc: func(ctx context.Context, groupID, bookingID, sessionID string) (*service.View, error) {
			called = true
			return nil, nil
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/groups/g1/participants/bk1", strings.NewReader(`{"sessionId":"organizer"}`))
	req = req.WithContext(session.WithID(req.Context(), "intruder"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden || called {
		t.Errorf("status=%d called=%v", w.Code, called)
	}
}

func TestAddParticipant_HidesOtherParticipantsContact(t *testing.T) {
	router := newRouter(&mockGroupService{
		addFunc: func(ctx context.Context, groupID string, client model.ClientInfo) (*model.Booking, *service.View, error) {
			g := &model.GroupBooking{
				ID:           groupID,
				Participants: []model.ClientInfo{{Name: "Ewa Kot", Email: "ewa@example.com", Phone: "+48601234567"}, client},
				BookingIDs:   []string{"bk0", "bk1"},
			}
			return &model.Booking{ID: "bk1", GroupID: groupID, Client: client}, &service.View{GroupBooking: g}, nil
		},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/groups/g1/participants", strings.NewReader(`{"clientInfo":{"name":"Ola"}}`)))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	for _, leaked := range []string{"ewa@example.com", "+48601234567"} {
		if strings.Contains(w.Body.String(), leaked) {
			t.Errorf("response leaks %q: %s", leaked, w.Body.String())
		}
	}
	if !strings.Contains(w.Body.String(), "Ewa Kot") {
		t.Errorf("participant names stay visible: %s", w.Body.String())
	}
}
