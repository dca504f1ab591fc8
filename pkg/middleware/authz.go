package middleware

import (
	"net/http"
	"time"

	"github.com/platinummonkey/gazette/pkg/contextkeys"
	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

// Authorizer gates handlers on the session's effective role, and inside an
// organization on the caller's membership role.
type Authorizer struct {
	policy  *rbac.Policy
	metrics *observability.Metrics
}

// NewAuthorizer creates an authorizer over policy. A nil policy uses the
// built-in table.
func NewAuthorizer(policy *rbac.Policy, metrics *observability.Metrics) *Authorizer {
	if policy == nil {
		policy = rbac.DefaultPolicy()
	}
	return &Authorizer{policy: policy, metrics: metrics}
}

// Policy returns the policy decisions are made against
func (a *Authorizer) Policy() *rbac.Policy {
	return a.policy
}

// Check evaluates resource:action for the request's session and records the
// decision. Requests without a session are denied.
func (a *Authorizer) Check(r *http.Request, resource rbac.Resource, action rbac.Action) rbac.PermissionCheckResult {
	perm := rbac.Permission{Resource: resource, Action: action}
	payload := GetSession(r)
	if payload == nil {
		return rbac.PermissionCheckResult{Permission: perm, Reason: "no session", CheckedAt: time.Now()}
	}

	role := payload.User.Role
	result := a.policy.Check(role.PolicyRole(), perm)
	a.record(r, string(role), result)
	return result
}

// Allowed reports whether the request's session may perform action on
// resource
func (a *Authorizer) Allowed(r *http.Request, resource rbac.Resource, action rbac.Action) bool {
	return a.Check(r, resource, action).Allowed
}

// CheckInOrg evaluates resource:action inside the organization resolved by
// OrgContextMiddleware against the caller's membership. Every membership
// carries the member row and owner and admin memberships add their own.
// Callers outside the organization are denied whatever their session role.
func (a *Authorizer) CheckInOrg(r *http.Request, resource rbac.Resource, action rbac.Action) rbac.PermissionCheckResult {
	perm := rbac.Permission{Resource: resource, Action: action}
	m := GetMembership(r)
	if m == nil || GetSession(r) == nil {
		result := rbac.PermissionCheckResult{Permission: perm, Reason: "not a member of the organization", CheckedAt: time.Now()}
		a.record(r, "org:none", result)
		return result
	}

	result := a.policy.Check(m.Role.PolicyRole(), perm)
	if !result.Allowed && m.Role != rbac.MembershipMember {
		if base := a.policy.Check(rbac.RoleMember, perm); base.Allowed {
			result = base
		}
	}
	a.record(r, "org:"+string(m.Role), result)
	return result
}

// AllowedInOrg is CheckInOrg reduced to its decision
func (a *Authorizer) AllowedInOrg(r *http.Request, resource rbac.Resource, action rbac.Action) bool {
	return a.CheckInOrg(r, resource, action).Allowed
}

func (a *Authorizer) record(r *http.Request, role string, result rbac.PermissionCheckResult) {
	perm := result.Permission
	a.metrics.RecordAuthzDecision(string(perm.Resource), string(perm.Action), role, result.Allowed)
	if !result.Allowed {
		observability.FromContext(r.Context()).WithFields(map[string]interface{}{
			"role":       role,
			"permission": perm.String(),
			"reason":     result.Reason,
		}).Debug("permission denied")
	}
}

// RequirePermission creates middleware that answers 401 without a session
// and 403 when the effective role lacks resource:action.
func (a *Authorizer) RequirePermission(resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireSession(w, r) {
				return
			}
			if result := a.Check(r, resource, action); !result.Allowed {
				WriteForbidden(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOrgPermission is RequirePermission evaluated with CheckInOrg. It
// must run after OrgContextMiddleware.
func (a *Authorizer) RequireOrgPermission(resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireSession(w, r) {
				return
			}
			if GetOrg(r) == nil {
				httputil.WriteNotFoundError(w, "organization not found")
				return
			}
			if result := a.CheckInOrg(r, resource, action); !result.Allowed {
				WriteForbidden(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteForbidden writes a 403 naming the refused permission and why
func WriteForbidden(w http.ResponseWriter, result rbac.PermissionCheckResult) {
	httputil.WriteDetailedError(w, http.StatusForbidden, "insufficient permissions", map[string]string{
		"permission": result.Permission.String(),
		"role":       string(result.Role),
		"reason":     result.Reason,
	})
}

// RequireSession creates middleware that only checks a session is present
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireSession(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession writes 401, or 503 when the session store failed, and
// reports whether the request has a session
func requireSession(w http.ResponseWriter, r *http.Request) bool {
	if GetSession(r) != nil {
		return true
	}
	if contextkeys.SessionUnavailable(r.Context()) {
		writeSessionUnavailable(w)
		return false
	}
	httputil.WriteUnauthorized(w, "authentication required")
	return false
}
