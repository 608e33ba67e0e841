package server

import (
	"encoding/json"
	"net/http"

	"github.com/eizes/gis-gateway/internal/errors"
	"github.com/eizes/gis-gateway/schema"
	"github.com/eizes/gis-gateway/vault"
)

// SettingsListHandler returns all active service configurations except the
// identity provider's, which is gateway bootstrap config rather than
// user-facing settings. Credential fields are masked by their type.
func (s *Server) SettingsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configs, err := s.vault.ListActive(r.Context(), vault.ServiceIdentityProvider)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, configs)
	}
}

// SettingsGetHandler returns a single service configuration.
func (s *Server) SettingsGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := vault.ParseServiceName(r.PathValue("service"))
		if err != nil {
			respondError(w, errors.ErrServiceNotFound)
			return
		}
		cfg, err := s.vault.Get(r.Context(), name)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, cfg)
	}
}

// SettingsUpdateHandler applies a partial configuration update. For the
// feature server, a workspace present after the merge is validated against
// the live database before anything is committed.
func (s *Server) SettingsUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := vault.ParseServiceName(r.PathValue("service"))
		if err != nil {
			respondError(w, errors.ErrServiceNotFound)
			return
		}

		var upd vault.Update
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&upd); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		session, ok := sessionFromContext(r.Context())
		if !ok {
			respondError(w, errors.ErrUnauthenticated)
			return
		}

		cfg, err := s.vault.Update(r.Context(), name, upd, session.User.Username)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"message": "Updated successfully",
			"data":    cfg,
		})
	}
}

// workspaceCheckRequest is the advisory validation body: candidate
// connection parameters, nothing persisted.
type workspaceCheckRequest struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database"`
	User      string `json:"user"`
	Password  string `json:"password"`
	Workspace string `json:"workspace"`
}

// ValidateWorkspaceHandler runs the schema check as a standalone pre-flight
// for configuration UIs. Always 200 with a result body; connectivity
// failures are an expected outcome here, not an error.
func (s *Server) ValidateWorkspaceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workspaceCheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		result := s.validator.Validate(r.Context(), schema.Params{
			Host:     req.Host,
			Port:     req.Port,
			Database: req.Database,
			User:     req.User,
			Password: req.Password,
			Schema:   req.Workspace,
		})
		respondJSON(w, http.StatusOK, result)
	}
}
