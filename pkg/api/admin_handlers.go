package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gazette/pkg/auth"
	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/middleware"
	"github.com/platinummonkey/gazette/pkg/rbac"
	"github.com/platinummonkey/gazette/pkg/session"
)

// AdminHandlers handles user administration
type AdminHandlers struct {
	users    identity.UserStore
	sessions *session.Manager
	authz    *middleware.Authorizer
	audit    *auth.AuditLogger
}

// NewAdminHandlers creates a new AdminHandlers
func NewAdminHandlers(users identity.UserStore, sessions *session.Manager, authz *middleware.Authorizer, audit *auth.AuditLogger) *AdminHandlers {
	return &AdminHandlers{
		users:    users,
		sessions: sessions,
		authz:    authz,
		audit:    audit,
	}
}

// RegisterRoutes registers admin routes
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	admin := router.PathPrefix("/admin").Subrouter()

	admin.Handle("/users/{id}/role",
		h.authz.RequirePermission(rbac.ResourceUser, rbac.ActionSetRole)(http.HandlerFunc(h.setRole)),
	).Methods("PUT")
	admin.Handle("/users/{id}/sessions",
		h.authz.RequirePermission(rbac.ResourceSession, rbac.ActionList)(http.HandlerFunc(h.listSessions)),
	).Methods("GET")
	admin.Handle("/users/{id}/sessions",
		h.authz.RequirePermission(rbac.ResourceSession, rbac.ActionRevoke)(http.HandlerFunc(h.revokeSessions)),
	).Methods("DELETE")
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user editor admin"`
}

type revokeResponse struct {
	Revoked int `json:"revoked"`
}

func (h *AdminHandlers) setRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req setRoleRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	role, err := rbac.ParseStoredRole(req.Role)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.users.UpdateStoredRole(r.Context(), id, role); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteInternalError(w, r, err)
		return
	}
	user, err := h.users.FindUserByID(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = h.audit.LogFromRequest(r, auth.ActionUserSetRole, "user", id, auth.StatusSuccess, nil)
	_ = httputil.WriteSuccess(w, user)
}

func (h *AdminHandlers) listSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	sessions, err := h.sessions.ListUserSessions(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	_ = httputil.WriteSuccess(w, sessions)
}

func (h *AdminHandlers) revokeSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	n, err := h.sessions.RevokeUserSessions(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = h.audit.LogFromRequest(r, auth.ActionSessionRevoke, "user", id, auth.StatusSuccess, nil)
	_ = httputil.WriteSuccess(w, revokeResponse{Revoked: n})
}
