// Package session issues the anonymous, signed session cookie that ties
// holds and bookings to the browser that created them.
package session

import (
	"context"
	"net/http"
	"time"

	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	CookieName = "slotkeeper_session"
	cookieTTL  = 30 * 24 * time.Hour
)

type contextKey struct{}

type state struct {
	id    string
	fresh bool
}

type Manager struct {
	sc  *securecookie.SecureCookie
	log *logger.Logger
}

// NewManager builds a cookie codec. An empty hashKey generates a random
// one, so sessions do not survive a restart.
func NewManager(hashKey, blockKey []byte, log *logger.Logger) *Manager {
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
		log.Warn("No session hash key configured, using an ephemeral key")
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(cookieTTL.Seconds()))
	return &Manager{sc: sc, log: log}
}

func (m *Manager) Issue(w http.ResponseWriter, r *http.Request, sessionID string) error {
	encoded, err := m.sc.Encode(CookieName, map[string]string{"sid": sessionID})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(cookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	return nil
}

// Read returns the session id carried by a valid cookie.
func (m *Manager) Read(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	value := map[string]string{}
	if err := m.sc.Decode(CookieName, c.Value, &value); err != nil {
		return "", false
	}
	sid := value["sid"]
	return sid, sid != ""
}

// Middleware makes sure every request carries a session id in its context,
// issuing a fresh cookie when the request has none.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, ok := m.Read(r)
		if !ok {
			sid = uuid.NewString()
			if err := m.Issue(w, r, sid); err != nil {
				m.log.Error("Failed to issue session cookie", "error", err)
			}
		}
		ctx := context.WithValue(r.Context(), contextKey{}, state{id: sid, fresh: !ok})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithID stores a session that arrived with a verified cookie.
func WithID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKey{}, state{id: sessionID})
}

func FromContext(ctx context.Context) string {
	st, _ := ctx.Value(contextKey{}).(state)
	return st.id
}

// Fresh reports whether the session was minted for this request because no
// valid cookie was presented. A fresh session proves nothing about the caller.
func Fresh(ctx context.Context) bool {
	st, ok := ctx.Value(contextKey{}).(state)
	return !ok || st.fresh
}

// Resolve returns the cookie session. A claimed id from the request body is
// only accepted when it names that same session.
func Resolve(ctx context.Context, claimed string) (string, error) {
	sid := FromContext(ctx)
	if sid == "" {
		return "", apperrors.Unauthorized("Session cookie required")
	}
	if claimed != "" && claimed != sid {
		return "", apperrors.Forbidden("Session does not match the session cookie")
	}
	return sid, nil
}

// Owns checks that the request's cookie session is ownerID.
func Owns(ctx context.Context, ownerID string) error {
	sid := FromContext(ctx)
	if sid == "" {
		return apperrors.Unauthorized("Session cookie required")
	}
	if ownerID == "" || ownerID != sid {
		return apperrors.Forbidden("Resource belongs to another session")
	}
	return nil
}
