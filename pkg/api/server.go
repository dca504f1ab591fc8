package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gazette/pkg/auth"
	"github.com/platinummonkey/gazette/pkg/billing"
	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/middleware"
	"github.com/platinummonkey/gazette/pkg/notify"
	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/orgs"
	"github.com/platinummonkey/gazette/pkg/session"
)

// Deps are the services the API is built from. LoginLimiter and Previews
// are optional.
type Deps struct {
	Store      identity.Store
	Auth       *auth.Service
	Sessions   *session.Manager
	Billing    *billing.Service
	Orgs       *orgs.Service
	Authorizer *middleware.Authorizer
	Audit      *auth.AuditLogger

	LoginLimiter    middleware.Limiter
	LimiterFailOpen bool
	// TrustedProxies may set the client address through forwarding headers
	TrustedProxies  *auth.TrustedProxies
	Previews        *notify.PreviewNotifier
	SecureCookies   bool
	AllowedOrigins  []string
	Metrics         *observability.Metrics
	Logger          *observability.Logger
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	deps    Deps
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Audit == nil {
		deps.Audit = auth.NewAuditLogger(deps.Logger)
		deps.Audit.SetTrustedProxies(deps.TrustedProxies)
	}
	if deps.Authorizer == nil {
		deps.Authorizer = middleware.NewAuthorizer(nil, deps.Metrics)
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()

	s.handler = s.router
	if len(deps.AllowedOrigins) > 0 {
		// Preflight requests never match a route, so CORS wraps the router.
		s.handler = httputil.CORSMiddleware(deps.AllowedOrigins)(s.router)
	}
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	d := s.deps

	s.router.Use(
		observability.RecoveryMiddleware(d.Logger),
		httputil.RequestIDMiddleware(d.Logger),
		httputil.LoggingMiddleware,
		observability.HTTPMetricsMiddleware(d.Metrics),
		middleware.NewSessionMiddleware(d.Sessions, true, d.Metrics).Handler,
	)
	apiRouter := s.router.PathPrefix("/api").Subrouter()

	var loginLimit func(http.Handler) http.Handler
	if d.LoginLimiter != nil {
		rl := middleware.NewRateLimitMiddleware(d.LoginLimiter, d.Logger)
		rl.SetFailOpen(d.LimiterFailOpen)
		rl.SetTrustedProxies(d.TrustedProxies)
		loginLimit = rl.Handler
	}

	registrars := []RouteRegistrar{
		NewAuthHandlers(d.Auth, d.Sessions, d.Audit, loginLimit, d.SecureCookies),
		NewPermissionHandlers(d.Authorizer),
		NewBillingHandlers(d.Billing, d.Authorizer, d.Audit),
		NewOrgHandlers(d.Orgs, d.Store, d.Authorizer, d.Audit),
		NewAdminHandlers(d.Store, d.Sessions, d.Authorizer, d.Audit),
	}
	for _, r := range registrars {
		r.RegisterRoutes(apiRouter)
	}

	if d.Previews != nil {
		NewMailHandlers(d.Previews).RegisterRoutes(s.router)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// userID returns the caller's user ID. Only valid behind RequireSession.
func userID(r *http.Request) string {
	return middleware.GetSession(r).User.ID
}
