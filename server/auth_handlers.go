package server

import (
	"fmt"
	"html"
	"net/http"

	"github.com/eizes/gis-gateway/internal/errors"
)

// LoginHandler starts the authorization-code flow: it registers a pending
// state server-side and redirects the browser to the identity provider.
// No cookie is set here.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, err := s.flow.BuildAuthorizationURL(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// CallbackHandler finishes the flow: code/state exchange, group check,
// session creation and cookie issuance.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")
		if code == "" || state == "" {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "missing code or state parameter"})
			return
		}

		login, err := s.flow.HandleCallback(r.Context(), code, state)
		if err != nil {
			var forbidden *errors.ForbiddenError
			if errors.As(err, &forbidden) {
				// Authenticated but not authorized: render a diagnostic page
				// naming the required group. No session, no cookie.
				s.renderAccessDenied(w, forbidden)
				return
			}
			respondError(w, err)
			return
		}

		s.setSessionCookie(w, r, login.SessionID, int(login.TTL.Seconds()))
		http.Redirect(w, r, s.config.PublicURL, http.StatusFound)
	}
}

// LogoutHandler deletes the session server-side and clears the cookie.
// Safe to call without a session.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			if err := s.store.Delete(r.Context(), cookie.Value); err != nil {
				respondError(w, err)
				return
			}
		}
		s.clearSessionCookie(w, r)
		respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	}
}

// ProfileHandler returns the stored user summary for the current session.
func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromContext(r.Context())
		if !ok {
			respondError(w, errors.ErrUnauthenticated)
			return
		}
		respondJSON(w, http.StatusOK, session.User)
	}
}

func (s *Server) renderAccessDenied(w http.ResponseWriter, forbidden *errors.ForbiddenError) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Access Denied</title></head>
<body>
<h1>Access Denied</h1>
<p>%s (%s) is not a member of the required group <strong>%s</strong>.</p>
<p>Contact your administrator to request access.</p>
</body>
</html>
`,
		html.EscapeString(forbidden.Username),
		html.EscapeString(forbidden.Email),
		html.EscapeString(forbidden.RequiredGroup))
}
