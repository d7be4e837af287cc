package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"slotkeeper/internal/storage"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockSlotService struct {
	createFunc   func(ctx context.Context, slot *model.Slot) error
	capacityFunc func(ctx context.Context, id string, capacity int) (*model.Slot, error)
}

func (m *mockSlotService) Create(ctx context.Context, slot *model.Slot) error {
	return m.createFunc(ctx, slot)
}

func (m *mockSlotService) GetByID(ctx context.Context, id string) (*model.Slot, error) {
	return nil, apperrors.NotFoundWithID("Slot", id)
}

func (m *mockSlotService) List(ctx context.Context, serviceID string, limit int, offset int64) ([]*model.Slot, error) {
	return []*model.Slot{{ID: "s1", ServiceID: serviceID, Capacity: 2}}, nil
}

func (m *mockSlotService) GetAvailability(ctx context.Context, id string) (*model.Availability, error) {
	return &model.Availability{SlotID: id, Capacity: 4, Reserved: 1, Available: 3}, nil
}

func (m *mockSlotService) UpdateCapacity(ctx context.Context, id string, capacity int) (*model.Slot, error) {
	return m.capacityFunc(ctx, id, capacity)
}

func (m *mockSlotService) TryReserve(ctx context.Context, tx storage.Tx, slotID string) error {
	return nil
}

func (m *mockSlotService) Release(ctx context.Context, tx storage.Tx, slotID string) error {
	return nil
}

func (m *mockSlotService) Invalidate(ctx context.Context, slotID string) {}

func allowAll(next httprouter.Handle) httprouter.Handle { return next }

func newRouter(svc *mockSlotService) *httprouter.Router {
	h := NewSlotHandler(svc, logger.Discard())
	router := httprouter.New()
	h.RegisterRoutes(router)
	h.RegisterAdminRoutes(router, allowAll)
	return router
}

func TestAvailability(t *testing.T) {
	router := newRouter(&mockSlotService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slots/s1/availability", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"available":3`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestCreateSlot(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		expectCode int
	}{
		{"created", `{"serviceId":"yoga","startTime":"2025-03-02T10:00:00Z","endTime":"2025-03-02T11:00:00Z","capacity":8}`, nil, http.StatusCreated},
		{"validation failure", `{"serviceId":"yoga","capacity":0}`, apperrors.Validation("Slot validation failed", nil), http.StatusUnprocessableEntity},
		{"unknown field", `{"serviceId":"yoga","rooms":2}`, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&mockSlotService{
				createFunc: func(ctx context.Context, slot *model.Slot) error {
					slot.ID = "new-slot"
					return tt.err
				},
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/slots", strings.NewReader(tt.body)))

			if w.Code != tt.expectCode {
				t.Fatalf("expected %d, got %d: %s", tt.expectCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestUpdateCapacity_ConflictWhenBooked(t *testing.T) {
	router := newRouter(&mockSlotService{
		capacityFunc: func(ctx context.Context, id string, capacity int) (*model.Slot, error) {
			return nil, apperrors.Conflict("Capacity cannot change once the slot has bookings")
		},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/admin/slots/s1/capacity", strings.NewReader(`{"capacity":1}`)))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestListSlots(t *testing.T) {
	router := newRouter(&mockSlotService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/slots?serviceId=yoga&limit=10", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"count":1`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}
