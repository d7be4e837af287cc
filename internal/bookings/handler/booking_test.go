package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"slotkeeper/internal/bookings/service"
	"slotkeeper/internal/storage"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/session"

	"github.com/julienschmidt/httprouter"
)

type mockBookingService struct {
	createFunc func(ctx context.Context, req service.CreateRequest) (*model.Booking, error)
	cancelFunc func(ctx context.Context, id, sessionID string) (*model.Booking, error)
	getFunc    func(ctx context.Context, id string) (*model.Booking, error)
}

func (m *mockBookingService) CreateFromHold(ctx context.Context, req service.CreateRequest) (*model.Booking, error) {
	return m.createFunc(ctx, req)
}

func (m *mockBookingService) Get(ctx context.Context, id string) (*model.Booking, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, apperrors.NotFoundWithID("Booking", id)
}

func (m *mockBookingService) Cancel(ctx context.Context, id, sessionID string) (*model.Booking, error) {
	return m.cancelFunc(ctx, id, sessionID)
}

func (m *mockBookingService) Complete(ctx context.Context, id string) (*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingService) Refund(ctx context.Context, id string) (*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingService) TimeoutPayment(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (m *mockBookingService) PrepareCreate(req *service.CreateRequest) error { return nil }

func (m *mockBookingService) CreateInTx(ctx context.Context, tx storage.Tx, req service.CreateRequest) (*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingService) Apply(ctx context.Context, tx storage.Tx, id string, event service.Event) (service.Change, bool, error) {
	return service.Change{}, false, nil
}

func (m *mockBookingService) AfterCommit(ctx context.Context, change service.Change) {}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{
		Level:   "info",
		Format:  logger.JSON,
		Service: "test",
	})
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		expectCode int
	}{
		{"created", `{"holdId":"h1","clientInfo":{"name":"Anna"},"amountDue":200}`, nil, http.StatusCreated},
		{"hold expired", `{"holdId":"h1","clientInfo":{"name":"Anna"},"amountDue":200}`, apperrors.HoldExpired("h1"), http.StatusGone},
		{"malformed body", `{"holdId":`, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBookingHandler(&mockBookingService{
				createFunc: func(ctx context.Context, req service.CreateRequest) (*model.Booking, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Booking{ID: "bk_1", HoldID: req.HoldID, AmountDue: req.AmountDue, Status: model.BookingPending}, nil
				},
			}, testLogger())

			w := httptest.NewRecorder()
			h.Create(w, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(tt.body)), httprouter.Params{})

			if w.Code != tt.expectCode {
				t.Fatalf("expected %d, got %d: %s", tt.expectCode, w.Code, w.Body.String())
			}
			if tt.expectCode == http.StatusCreated && !strings.Contains(w.Body.String(), `"status":"pending"`) {
				t.Errorf("body missing pending status: %s", w.Body.String())
			}
		})
	}
}

func TestCancel_UsesCookieSessionByDefault(t *testing.T) {
	var gotSession string
	h := NewBookingHandler(&mockBookingService{
		cancelFunc: func(ctx context.Context, id, sessionID string) (*model.Booking, error) {
			gotSession = sessionID
			return &model.Booking{ID: id, Status: model.BookingCancelled}, nil
		},
	}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/bookings/bk_1/cancel", nil)
	req = req.WithContext(session.WithID(req.Context(), "cookie-sess"))
	w := httptest.NewRecorder()
	h.Cancel(w, req, httprouter.Params{{Key: "id", Value: "bk_1"}})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotSession != "cookie-sess" {
		t.Errorf("session = %q", gotSession)
	}
}

func TestCancel_ForeignSessionClaimIsForbidden(t *testing.T) {
	called := false
	h := NewBookingHandler(&mockBookingService{
		cancelFunc: func(ctx context.Context, id, sessionID string) (*model.Booking, error) {
			called = true
			return &model.Booking{ID: id, Status: model.BookingCancelled}, nil
		},
	}, testLogger())

	tests := []struct {
		name       string
		session    string
		expectCode int
	}{
		{"fresh cookie replays victim id", "attacker-sess", http.StatusForbidden},
		{"no session at all", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/bookings/bk_1/cancel", strings.NewReader(`{"sessionId":"victim-sess"}`))
			if tt.session != "" {
				req = req.WithContext(session.WithID(req.Context(), tt.session))
			}
			w := httptest.NewRecorder()
			h.Cancel(w, req, httprouter.Params{{Key: "id", Value: "bk_1"}})

			if w.Code != tt.expectCode {
				t.Fatalf("expected %d, got %d: %s", tt.expectCode, w.Code, w.Body.String())
			}
		})
	}
	if called {
		t.Error("cancel must not reach the service with a foreign session")
	}
}

func TestGetByID_PublicViewHidesClientAndHold(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{
		getFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:     id,
				HoldID: "hold-secret",
				Client: model.ClientInfo{Name: "Anna Nowak", Email: "anna@example.com"},
				Status: model.BookingPending,
			}, nil
		},
	}, testLogger())
	ps := httprouter.Params{{Key: "id", Value: "bk_1"}}

	w := httptest.NewRecorder()
	h.GetByID(w, httptest.NewRequest(http.MethodGet, "/bookings/bk_1", nil), ps)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, leaked := range []string{"hold-secret", "anna@example.com", "clientInfo"} {
		if strings.Contains(w.Body.String(), leaked) {
			t.Errorf("public view leaks %q: %s", leaked, w.Body.String())
		}
	}

	w = httptest.NewRecorder()
	h.AdminGetByID(w, httptest.NewRequest(http.MethodGet, "/admin/bookings/bk_1", nil), ps)
	if !strings.Contains(w.Body.String(), "anna@example.com") {
		t.Errorf("admin view should carry client info: %s", w.Body.String())
	}
}
