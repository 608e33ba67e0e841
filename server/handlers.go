package server

import (
	"net/http"
	"time"

	"github.com/eizes/gis-gateway/internal/errors"
)

// RootHandler describes the service.
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"service": s.config.AppName,
			"version": "2.0.0",
			"auth":    "session-based",
		})
	}
}

// HealthHandler is the liveness probe.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// PreflightHandler answers OPTIONS requests that carry no Origin header.
// Cross-origin preflights are answered by the CORS middleware before the
// request reaches here.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// MapsHandler lists the maps owned by the logged-in user.
func (s *Server) MapsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromContext(r.Context())
		if !ok {
			respondError(w, errors.ErrUnauthenticated)
			return
		}
		maps, err := s.maps.ListForUser(r.Context(), session.User.Username)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"maps": maps})
	}
}
