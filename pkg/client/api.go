package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"slotkeeper/pkg/model"
)

// APIError is a non-2xx answer decoded from the error body.
type APIError struct {
	StatusCode int
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

type Hold struct {
	HoldID    string    `json:"holdId"`
	SlotID    string    `json:"slotId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Group struct {
	model.GroupBooking
	TotalDue int64 `json:"totalDue"`
}

type Participant struct {
	Booking *model.BookingView `json:"booking"`
	Group   *Group             `json:"group"`
}

type PaymentResult struct {
	Outcome   model.PaymentOutcome `json:"outcome"`
	BookingID string               `json:"bookingId"`
	Status    model.BookingStatus  `json:"status,omitempty"`
	Note      string               `json:"note,omitempty"`
}

// API is a typed client for the public and admin routes. It keeps the
// session cookie between calls, so one API value acts as one browser.
type API struct {
	http       *HttpClient
	adminToken string
}

func NewAPI(baseURL, adminToken string) *API {
	c := NewHttpClient(baseURL)
	jar, _ := cookiejar.New(nil)
	c.HTTPClient.Jar = jar
	return &API{http: c, adminToken: adminToken}
}

func (a *API) admin() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.adminToken}
}

func decode(resp *Response, target any) error {
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(resp.Body, apiErr)
		return apiErr
	}
	if target == nil {
		return nil
	}
	return resp.DecodeData(target)
}

func (a *API) CreateSlot(ctx context.Context, serviceID string, start, end time.Time, capacity int) (*model.Slot, error) {
	resp, err := a.http.POST(ctx, "/admin/slots", map[string]any{
		"serviceId": serviceID,
		"startTime": start,
		"endTime":   end,
		"capacity":  capacity,
	}, a.admin())
	if err != nil {
		return nil, err
	}
	var slot model.Slot
	return &slot, decode(resp, &slot)
}

func (a *API) UpdateCapacity(ctx context.Context, slotID string, capacity int) (*model.Slot, error) {
	resp, err := a.http.PATCH(ctx, "/admin/slots/"+slotID+"/capacity", map[string]any{"capacity": capacity}, a.admin())
	if err != nil {
		return nil, err
	}
	var slot model.Slot
	return &slot, decode(resp, &slot)
}

func (a *API) Availability(ctx context.Context, slotID string) (*model.Availability, error) {
	resp, err := a.http.GET(ctx, "/slots/"+slotID+"/availability", nil)
	if err != nil {
		return nil, err
	}
	var av model.Availability
	return &av, decode(resp, &av)
}

// CreateHold reports created=false when the session already held the slot.
func (a *API) CreateHold(ctx context.Context, slotID string, ttl time.Duration) (*Hold, bool, error) {
	body := map[string]any{"slotId": slotID}
	if ttl > 0 {
		body["ttlSeconds"] = int(ttl.Seconds())
	}
	resp, err := a.http.POST(ctx, "/holds", body, nil)
	if err != nil {
		return nil, false, err
	}
	var h Hold
	if err := decode(resp, &h); err != nil {
		return nil, false, err
	}
	return &h, resp.StatusCode == http.StatusCreated, nil
}

func (a *API) RenewHold(ctx context.Context, holdID string, ttl time.Duration) (*Hold, error) {
	resp, err := a.http.PATCH(ctx, "/holds/"+holdID+"/renew", map[string]any{"ttlSeconds": int(ttl.Seconds())}, nil)
	if err != nil {
		return nil, err
	}
	var h Hold
	return &h, decode(resp, &h)
}

func (a *API) CancelHold(ctx context.Context, holdID string) error {
	resp, err := a.http.DELETE(ctx, "/holds/"+holdID, nil)
	if err != nil {
		return err
	}
	return decode(resp, nil)
}

func (a *API) CreateBooking(ctx context.Context, holdID string, client model.ClientInfo, amountDue int64, currency string) (*model.BookingView, error) {
	resp, err := a.http.POST(ctx, "/bookings", map[string]any{
		"holdId":     holdID,
		"clientInfo": client,
		"amountDue":  amountDue,
		"currency":   currency,
	}, nil)
	if err != nil {
		return nil, err
	}
	var b model.BookingView
	return &b, decode(resp, &b)
}

func (a *API) GetBooking(ctx context.Context, id string) (*model.BookingView, error) {
	resp, err := a.http.GET(ctx, "/bookings/"+id, nil)
	if err != nil {
		return nil, err
	}
	var b model.BookingView
	return &b, decode(resp, &b)
}

func (a *API) CancelBooking(ctx context.Context, id string) (*model.BookingView, error) {
	resp, err := a.http.POST(ctx, "/bookings/"+id+"/cancel", nil, nil)
	if err != nil {
		return nil, err
	}
	var b model.BookingView
	return &b, decode(resp, &b)
}

func (a *API) CompleteBooking(ctx context.Context, id string) (*model.Booking, error) {
	resp, err := a.http.POST(ctx, "/admin/bookings/"+id+"/complete", nil, a.admin())
	if err != nil {
		return nil, err
	}
	var b model.Booking
	return &b, decode(resp, &b)
}

func (a *API) RefundBooking(ctx context.Context, id string) (*model.Booking, error) {
	resp, err := a.http.POST(ctx, "/admin/bookings/"+id+"/refund", nil, a.admin())
	if err != nil {
		return nil, err
	}
	var b model.Booking
	return &b, decode(resp, &b)
}

// SendWebhook posts a raw provider payload; path is the webhook route.
func (a *API) SendWebhook(ctx context.Context, path string, payload []byte, headers map[string]string) (*PaymentResult, error) {
	resp, err := a.http.POSTRaw(ctx, path, payload, headers)
	if err != nil {
		return nil, err
	}
	var res PaymentResult
	return &res, decode(resp, &res)
}

func (a *API) CreateGroup(ctx context.Context, slotID string, maxSize int, amountPerParticipant int64) (*Group, error) {
	resp, err := a.http.POST(ctx, "/groups", map[string]any{
		"slotId":               slotID,
		"maxSize":              maxSize,
		"amountPerParticipant": amountPerParticipant,
	}, nil)
	if err != nil {
		return nil, err
	}
	var g Group
	return &g, decode(resp, &g)
}

func (a *API) AddParticipant(ctx context.Context, groupID string, client model.ClientInfo) (*Participant, error) {
	resp, err := a.http.POST(ctx, "/groups/"+groupID+"/participants", map[string]any{"clientInfo": client}, nil)
	if err != nil {
		return nil, err
	}
	var p Participant
	return &p, decode(resp, &p)
}

func (a *API) RemoveParticipant(ctx context.Context, groupID, bookingID string) (*Group, error) {
	resp, err := a.http.DELETE(ctx, "/groups/"+groupID+"/participants/"+bookingID, nil)
	if err != nil {
		return nil, err
	}
	var g Group
	return &g, decode(resp, &g)
}

// Stats returns the raw admin stats payload.
func (a *API) Stats(ctx context.Context) (map[string]any, error) {
	resp, err := a.http.GET(ctx, "/admin/stats", a.admin())
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, decode(resp, &out)
}
