// Package server is the gateway HTTP surface: authentication endpoints, the
// settings CRUD and the map listing, wired over the core packages.
package server

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/eizes/gis-gateway/authflow"
	"github.com/eizes/gis-gateway/internal/config"
	"github.com/eizes/gis-gateway/mapping"
	"github.com/eizes/gis-gateway/schema"
	"github.com/eizes/gis-gateway/sessions"
	"github.com/eizes/gis-gateway/vault"
)

type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config *config.Config

	store     sessions.Store
	flow      *authflow.Flow
	vault     *vault.Vault
	validator *schema.Validator
	maps      *mapping.Lister

	authLimiter *ipRateLimiter
}

func New(cfg *config.Config, store sessions.Store, flow *authflow.Flow, v *vault.Vault, validator *schema.Validator, maps *mapping.Lister) *Server {
	s := &Server{
		env:         cfg.Env,
		mux:         http.NewServeMux(),
		config:      cfg,
		store:       store,
		flow:        flow,
		vault:       v,
		validator:   validator,
		maps:        maps,
		authLimiter: newIPRateLimiter(),
	}

	s.initRoutes()
	s.logRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route registered")
		} else {
			log.Debug().Str("path", parts[0]).Msg("route registered")
		}
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
