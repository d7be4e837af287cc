package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeTimeout      = "TIMEOUT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInvalidInput = "INVALID_INPUT"

	CodeSlotUnavailable   = "SLOT_UNAVAILABLE"
	CodeHoldNotFound      = "HOLD_NOT_FOUND"
	CodeHoldExpired       = "HOLD_EXPIRED"
	CodeGroupFull         = "GROUP_SIZE_EXCEEDED"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodePaymentMismatch   = "PAYMENT_MISMATCH"
	CodePaymentRejected   = "PAYMENT_REJECTED"
	CodeRateLimited       = "RATE_LIMITED"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

// Retryable reports whether the caller may repeat the request unchanged.
// Only infrastructure failures qualify; domain rejections never do.
func (e *AppError) Retryable() bool {
	return e.Code == CodeUnavailable || e.Code == CodeTimeout
}

func (e *AppError) ToJSON() []byte {
	response := ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
	data, _ := json.Marshal(response)
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Timeout(message string) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

func Unavailable(service string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// StoreUnavailable wraps an infrastructure failure from the persistence layer.
// Clients may retry these.
func StoreUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    "storage is temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func SlotUnavailable(slotID string) *AppError {
	return &AppError{
		Code:       CodeSlotUnavailable,
		Message:    "Slot has no remaining capacity",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"slotId": slotID},
	}
}

func HoldNotFound(holdID string) *AppError {
	return &AppError{
		Code:       CodeHoldNotFound,
		Message:    "Hold not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"holdId": holdID},
	}
}

func HoldExpired(holdID string) *AppError {
	return &AppError{
		Code:       CodeHoldExpired,
		Message:    "Hold has expired or was already used",
		HTTPStatus: http.StatusGone,
		Details:    map[string]any{"holdId": holdID},
	}
}

func GroupFull(groupID string, maxSize int) *AppError {
	return &AppError{
		Code:       CodeGroupFull,
		Message:    fmt.Sprintf("Group already has %d participants", maxSize),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"groupId": groupID, "maxSize": maxSize},
	}
}

func InvalidTransition(bookingID, from, event string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("Cannot apply %s to a %s booking", event, from),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"bookingId": bookingID, "status": from, "event": event},
	}
}

func PaymentMismatch(bookingID, note string) *AppError {
	return &AppError{
		Code:       CodePaymentMismatch,
		Message:    "Payment does not match the booking",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"bookingId": bookingID, "reason": note},
	}
}

// PaymentRejected marks a verified payment that the booking could not accept
// in its current status. These need manual review.
func PaymentRejected(bookingID, note string) *AppError {
	return &AppError{
		Code:       CodePaymentRejected,
		Message:    "Payment could not be applied to the booking",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"bookingId": bookingID, "reason": note},
	}
}

func RateLimited(message string) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
