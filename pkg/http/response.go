package http

import (
	"encoding/json"
	"net/http"

	apperrors "slotkeeper/pkg/errors"
)

type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type SuccessResponse struct {
	Data any `json:"data,omitempty"`
}

type ListResponse struct {
	Data   any   `json:"data"`
	Count  int   `json:"count"`
	Limit  int   `json:"limit"`
	Offset int64 `json:"offset"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError renders any error through the AppError envelope; the status code
// comes from the AppError itself.
func WriteError(w http.ResponseWriter, err error) error {
	return apperrors.WriteError(w, err)
}

func WriteBadRequest(w http.ResponseWriter, message string) error {
	return WriteError(w, apperrors.InvalidInput(message))
}

func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

func WriteCreated(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func WriteList(w http.ResponseWriter, data any, count int, limit int, offset int64) error {
	return WriteJSON(w, http.StatusOK, ListResponse{
		Data:   data,
		Count:  count,
		Limit:  limit,
		Offset: offset,
	})
}
