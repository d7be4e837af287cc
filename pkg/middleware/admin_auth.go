package middleware

import (
	"net/http"
	"strings"

	"slotkeeper/pkg/contracts"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/crypto/bcrypt"
)

// HashAdminToken produces the value expected in ADMIN_TOKEN_HASH.
func HashAdminToken(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	return string(b), err
}

// AdminAuth guards operator routes with a bearer token checked against a
// bcrypt hash. Without a configured hash every admin request is refused.
func AdminAuth(tokenHash string, log *logger.Logger) contracts.Guard {
	if tokenHash == "" {
		log.Error("No admin token hash configured, admin routes are disabled")
	}

	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			token := bearerToken(r)
			if tokenHash == "" || token == "" ||
				bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
				log.Warn("Admin authentication failed",
					"request_id", RequestID(r),
					"path", r.URL.Path,
					"token_present", token != "",
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				if writeErr := httputil.WriteError(w, apperrors.Unauthorized("Invalid admin token")); writeErr != nil {
					log.Error("failed to write error response", "handler", "AdminAuth", "operation", "WriteError", "error", writeErr)
				}
				return
			}

			next(w, r, ps)
		}
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
