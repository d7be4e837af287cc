package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWrap(t *testing.T) {
	originalErr := errors.New("database connection failed")
	wrapped := Wrap(originalErr, CodeInternal, "internal error", http.StatusInternalServerError)

	if wrapped.Err != originalErr {
		t.Errorf("expected wrapped error to contain original error")
	}
	if !errors.Is(wrapped, originalErr) {
		t.Errorf("expected errors.Is to see through AppError")
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   &AppError{Code: CodeNotFound, Message: "resource not found"},
			expected: "NOT_FOUND: resource not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeInternal,
				Message: "internal error",
				Err:     errors.New("database connection failed"),
			},
			expected: "INTERNAL_ERROR: internal error (caused by: database connection failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDomainConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"slot unavailable", SlotUnavailable("s1"), CodeSlotUnavailable, http.StatusConflict},
		{"hold not found", HoldNotFound("h1"), CodeHoldNotFound, http.StatusNotFound},
		{"hold expired", HoldExpired("h1"), CodeHoldExpired, http.StatusGone},
		{"group full", GroupFull("g1", 4), CodeGroupFull, http.StatusConflict},
		{"invalid transition", InvalidTransition("b1", "cancelled", "payment_confirmed"), CodeInvalidTransition, http.StatusConflict},
		{"rate limited", RateLimited("slow down"), CodeRateLimited, http.StatusTooManyRequests},
		{"store unavailable", StoreUnavailable(errors.New("conn reset")), CodeUnavailable, http.StatusServiceUnavailable},
		{"validation", Validation("bad", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"conflict", Conflict("taken"), CodeConflict, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.StatusCode() != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, tt.err.StatusCode())
			}
		})
	}
}

func TestAppError_Retryable(t *testing.T) {
	if !StoreUnavailable(errors.New("x")).Retryable() {
		t.Error("storage failures should be retryable")
	}
	if SlotUnavailable("s1").Retryable() {
		t.Error("capacity rejections must not be retryable")
	}
}

func TestAsAppError_Wrapped(t *testing.T) {
	inner := HoldExpired("h1")
	wrapped := fmt.Errorf("consume: %w", inner)

	if !IsAppError(wrapped) {
		t.Fatal("expected IsAppError to unwrap")
	}
	if got := AsAppError(wrapped); got != inner {
		t.Errorf("expected the inner AppError back")
	}
	if !HasCode(wrapped, CodeHoldExpired) {
		t.Errorf("expected HasCode to match %s", CodeHoldExpired)
	}

	plain := AsAppError(errors.New("boom"))
	if plain.Code != CodeInternal {
		t.Errorf("expected plain errors to become %s, got %s", CodeInternal, plain.Code)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteError(w, HoldExpired("h1")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	if w.Code != http.StatusGone {
		t.Errorf("expected status %d, got %d", http.StatusGone, w.Code)
	}

	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != CodeHoldExpired {
		t.Errorf("expected code %s, got %s", CodeHoldExpired, body.Code)
	}
	if body.Details["holdId"] != "h1" {
		t.Errorf("expected holdId detail, got %v", body.Details)
	}
}

func TestWriteError_HidesInternalCause(t *testing.T) {
	w := httptest.NewRecorder()
	_ = WriteError(w, errors.New("pq: password authentication failed"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	var body ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Message != "An unexpected error occurred" {
		t.Errorf("internal error text leaked: %q", body.Message)
	}
}
