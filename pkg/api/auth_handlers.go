package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gazette/pkg/auth"
	"github.com/platinummonkey/gazette/pkg/contextkeys"
	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/middleware"
	"github.com/platinummonkey/gazette/pkg/session"
)

// AuthHandlers handles sign-up, login and the caller's own session
type AuthHandlers struct {
	auth          *auth.Service
	sessions      *session.Manager
	audit         *auth.AuditLogger
	loginLimit    func(http.Handler) http.Handler
	secureCookies bool
}

// NewAuthHandlers creates a new AuthHandlers. loginLimit, when set, wraps
// the login endpoint.
func NewAuthHandlers(authService *auth.Service, sessions *session.Manager, audit *auth.AuditLogger, loginLimit func(http.Handler) http.Handler, secureCookies bool) *AuthHandlers {
	return &AuthHandlers{
		auth:          authService,
		sessions:      sessions,
		audit:         audit,
		loginLimit:    loginLimit,
		secureCookies: secureCookies,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	var login http.Handler = http.HandlerFunc(h.login)
	if h.loginLimit != nil {
		login = h.loginLimit(login)
	}

	router.HandleFunc("/users", h.signup).Methods("POST")
	router.Handle("/sessions", login).Methods("POST")

	router.Handle("/session", middleware.RequireSession(http.HandlerFunc(h.getSession))).Methods("GET")
	router.Handle("/session", middleware.RequireSession(http.HandlerFunc(h.logout))).Methods("DELETE")
	router.Handle("/session/active-organization", middleware.RequireSession(http.HandlerFunc(h.setActiveOrganization))).Methods("PUT")
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type activeOrganizationRequest struct {
	// Empty re-runs automatic selection
	OrganizationID string `json:"organizationId"`
}

func (h *AuthHandlers) signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.auth.Signup(r.Context(), req)
	if errors.Is(err, auth.ErrEmailTaken) {
		_ = h.audit.LogFromRequest(r, auth.ActionSignup, "user", "", auth.StatusFailure, err)
		httputil.WriteConflict(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = h.audit.LogAction(r.Context(), &auth.AuditEvent{
		UserID:       user.ID,
		Action:       auth.ActionSignup,
		ResourceType: "user",
		ResourceID:   user.ID,
		IPAddress:    h.audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
		Status:       auth.StatusSuccess,
	})
	_ = httputil.WriteCreated(w, user)
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		_ = h.audit.LogFromRequest(r, auth.ActionLogin, "session", "", auth.StatusFailure, err)
		httputil.WriteUnauthorized(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	created, err := h.sessions.Create(r.Context(), user, session.Metadata{
		IPAddress: h.audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = h.audit.LogAction(r.Context(), &auth.AuditEvent{
		UserID:       user.ID,
		Action:       auth.ActionLogin,
		ResourceType: "session",
		ResourceID:   created.Session.ID,
		IPAddress:    h.audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
		Status:       auth.StatusSuccess,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    created.Token,
		Path:     "/",
		Expires:  created.Session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	_ = httputil.WriteCreated(w, created)
}

func (h *AuthHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, middleware.GetSession(r))
}

func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	payload := middleware.GetSession(r)
	err := h.sessions.Revoke(r.Context(), contextkeys.GetSessionToken(r.Context()))
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = h.audit.LogFromRequest(r, auth.ActionLogout, "session", payload.Session.ID, auth.StatusSuccess, nil)
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteNoContent(w)
}

func (h *AuthHandlers) setActiveOrganization(w http.ResponseWriter, r *http.Request) {
	var req activeOrganizationRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	sess, err := h.sessions.SetActiveOrganization(r.Context(), contextkeys.GetSessionToken(r.Context()), req.OrganizationID)
	switch {
	case errors.Is(err, session.ErrNotMember):
		_ = h.audit.LogFromRequest(r, auth.ActionActiveOrgSwitch, "organization", req.OrganizationID, auth.StatusDenied, err)
		httputil.WriteForbidden(w, err.Error())
		return
	case errors.Is(err, session.ErrSessionNotFound):
		httputil.WriteUnauthorized(w, "session expired")
		return
	case err != nil:
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = h.audit.LogFromRequest(r, auth.ActionActiveOrgSwitch, "organization", req.OrganizationID, auth.StatusSuccess, nil)
	_ = httputil.WriteSuccess(w, sess)
}
