package server

const (
	RouteRoot              = "/"
	RouteHealth            = "/health"
	RouteAuthLogin         = "/auth/login"
	RouteAuthCallback      = "/auth/callback"
	RouteAuthLogout        = "/auth/logout"
	RouteUserProfile       = "/user/profile"
	RouteSettings          = "/settings"
	RouteSettingsService   = "/settings/{service}"
	RouteValidateWorkspace = "/settings/feature-server/validate-workspace"
	RouteMappingMaps       = "/mapping/maps"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteRoot, ChainMiddleware(s.RootHandler(), s.StdMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.StdMiddleware()...))

	// CORS preflights need a catch-all: every other route is registered with
	// a method-specific pattern, so an OPTIONS request would get a bare 405
	// from the mux before the CORS middleware ever ran.
	s.RegisterRouteFunc("OPTIONS "+RouteRoot, ChainMiddleware(s.PreflightHandler(), s.StdMiddleware()...))

	// AUTH
	s.RegisterRouteFunc("GET "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.AuthMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthCallback, ChainMiddleware(s.CallbackHandler(), s.AuthMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.StdMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteUserProfile, ChainMiddleware(s.ProfileHandler(), s.ProtectedMiddleware()...))

	// SETTINGS
	s.RegisterRouteFunc("GET "+RouteSettings, ChainMiddleware(s.SettingsListHandler(), s.ProtectedMiddleware()...))
	// The validate-workspace route is registered before the {service}
	// wildcard so the mux resolves it by specificity.
	s.RegisterRouteFunc("POST "+RouteValidateWorkspace, ChainMiddleware(s.ValidateWorkspaceHandler(), s.ProtectedMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteSettingsService, ChainMiddleware(s.SettingsGetHandler(), s.ProtectedMiddleware()...))
	s.RegisterRouteFunc("PUT "+RouteSettingsService, ChainMiddleware(s.SettingsUpdateHandler(), s.ProtectedMiddleware()...))

	// MAPPING
	s.RegisterRouteFunc("GET "+RouteMappingMaps, ChainMiddleware(s.MapsHandler(), s.ProtectedMiddleware()...))
}
