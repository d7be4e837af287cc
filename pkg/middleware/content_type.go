package middleware

import (
	"net/http"
	"strings"

	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
)

// ContentTypeValidation rejects bodies that are not JSON. Requests without a
// body pass through, so an empty POST to an action route is allowed.
func ContentTypeValidation(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiresContentType(r) {
				contentType := extractContentType(r.Header.Get("Content-Type"))

				if contentType != "application/json" {
					rejectInvalidContentType(w, log, r, contentType)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requiresContentType(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	}
	return false
}

func extractContentType(header string) string {
	if header == "" {
		return ""
	}

	parts := strings.Split(header, ";")
	return strings.ToLower(strings.TrimSpace(parts[0]))
}

func rejectInvalidContentType(w http.ResponseWriter, log *logger.Logger, r *http.Request, contentType string) {
	log.Warn("Invalid Content-Type header",
		"request_id", RequestID(r),
		"content_type", contentType,
		"path", r.URL.Path,
		"method", r.Method,
	)

	err := apperrors.New(apperrors.CodeBadRequest, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		log.Error("failed to write error response", "handler", "ContentTypeValidation", "operation", "WriteError", "error", writeErr)
	}
}
