package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/eizes/gis-gateway/internal/errors"
)

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to encode response body")
	}
}

// respondError maps the error taxonomy to HTTP statuses. Protocol failures
// stay generic; only validation errors carry structured detail back to the
// caller. Everything unanticipated is logged server-side and surfaced as a
// bare 500.
func respondError(w http.ResponseWriter, err error) {
	var validation *errors.ValidationError
	if errors.As(err, &validation) {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"field":   validation.Field,
			"message": validation.Message,
		})
		return
	}

	var forbidden *errors.ForbiddenError
	if errors.As(err, &forbidden) {
		respondJSON(w, http.StatusForbidden, map[string]string{
			"error":          "access denied",
			"required_group": forbidden.RequiredGroup,
		})
		return
	}

	switch {
	case errors.Is(err, errors.ErrUnauthenticated),
		errors.Is(err, errors.ErrSessionNotFound),
		errors.Is(err, errors.ErrSessionExpired):
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	case errors.Is(err, errors.ErrInvalidState):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid state"})
	case errors.Is(err, errors.ErrTokenExchange):
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "token exchange failed"})
	case errors.Is(err, errors.ErrUserInfo):
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "failed to get user info"})
	case errors.Is(err, errors.ErrServiceNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "service not found"})
	case errors.Is(err, errors.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		log.Err(err).Msg("request failed")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
