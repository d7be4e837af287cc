package errors

import (
	"encoding/json"
	"net/http"
)

// WriteError renders err as the JSON error envelope. Errors that are not
// AppErrors are reported as INTERNAL_ERROR without leaking their text.
func WriteError(w http.ResponseWriter, err error) error {
	appErr := AsAppError(err)
	w.Header().Set("Content-Type", "application/json")
	if appErr.HTTPStatus == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	w.WriteHeader(appErr.StatusCode())

	response := ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}

	return json.NewEncoder(w).Encode(response)
}

func WriteSuccess(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Return error so caller can log - no recovery possible after WriteHeader
	return json.NewEncoder(w).Encode(data)
}
