package server

import (
	"context"
	"net/http"

	"github.com/eizes/gis-gateway/internal/errors"
	"github.com/eizes/gis-gateway/sessions"
)

// sessionCookieName matches what existing frontends expect.
const sessionCookieName = "session_id"

type contextKey string

const sessionContextKey contextKey = "session"

// RequireSession resolves the session cookie and injects the session into
// the request context. Missing or expired sessions are rejected with 401.
func (s *Server) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			respondError(w, errors.ErrUnauthenticated)
			return
		}

		session, err := s.store.Get(r.Context(), cookie.Value)
		if err != nil {
			respondError(w, errors.ErrUnauthenticated)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next(w, r.WithContext(ctx))
	}
}

// sessionFromContext returns the session injected by RequireSession.
func sessionFromContext(ctx context.Context) (*sessions.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*sessions.Session)
	return session, ok
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	s.setSessionCookie(w, r, "", -1)
}
