package storage

import (
	"context"
	"errors"
	"net/http"

	apperrors "slotkeeper/pkg/errors"
)

// ToAppError maps a repository error onto the HTTP-facing error model.
// AppErrors pass through; anything unrecognized is an infrastructure
// failure the client may retry.
func ToAppError(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return apperrors.NotFoundWithID(resource, id)
	case errors.Is(err, ErrConcurrentUpdate):
		return apperrors.Wrap(err, apperrors.CodeConflict, resource+" was modified concurrently, retry the request", http.StatusConflict)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("storage operation timed out")
	}
	return apperrors.StoreUnavailable(err)
}
