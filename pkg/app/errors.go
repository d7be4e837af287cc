package app

import (
	"net/http"

	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
)

func notFound(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteError(w, apperrors.NotFound("Route"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteError(w, apperrors.New(apperrors.CodeBadRequest, "Method not allowed", http.StatusMethodNotAllowed))
}
