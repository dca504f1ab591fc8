package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/middleware"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

// PermissionHandlers exposes the policy table to clients
type PermissionHandlers struct {
	authz *middleware.Authorizer
}

// NewPermissionHandlers creates a new PermissionHandlers
func NewPermissionHandlers(authz *middleware.Authorizer) *PermissionHandlers {
	return &PermissionHandlers{authz: authz}
}

// RegisterRoutes registers permission routes
func (h *PermissionHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/permissions", middleware.RequireSession(http.HandlerFunc(h.checkPermission))).Methods("GET")
	router.HandleFunc("/roles", h.listRoles).Methods("GET")
}

type permissionResponse struct {
	Resource rbac.Resource      `json:"resource"`
	Action   rbac.Action        `json:"action"`
	Role     rbac.EffectiveRole `json:"role"`
	Allowed  bool               `json:"allowed"`
	Reason   string             `json:"reason"`
}

// checkPermission answers whether the caller's effective role grants
// ?permission=resource:action, or ?resource=&action=
func (h *PermissionHandlers) checkPermission(w http.ResponseWriter, r *http.Request) {
	var perm rbac.Permission
	if raw := r.URL.Query().Get("permission"); raw != "" {
		p, err := rbac.ParsePermission(raw)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		perm = p
	} else {
		resource, ok := httputil.RequireQuery(w, r, "resource")
		if !ok {
			return
		}
		action, ok := httputil.RequireQuery(w, r, "action")
		if !ok {
			return
		}
		perm = rbac.Permission{Resource: rbac.Resource(resource), Action: rbac.Action(action)}
	}

	result := h.authz.Check(r, perm.Resource, perm.Action)
	_ = httputil.WriteSuccess(w, permissionResponse{
		Resource: perm.Resource,
		Action:   perm.Action,
		Role:     middleware.GetSession(r).User.Role,
		Allowed:  result.Allowed,
		Reason:   result.Reason,
	})
}

func (h *PermissionHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, h.authz.Policy().Roles())
}
