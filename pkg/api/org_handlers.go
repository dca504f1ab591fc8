package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gazette/pkg/auth"
	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/middleware"
	"github.com/platinummonkey/gazette/pkg/orgs"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

// OrgHandlers handles organization-related HTTP requests
type OrgHandlers struct {
	orgService *orgs.Service
	lookup     middleware.OrgLookup
	authz      *middleware.Authorizer
	audit      *auth.AuditLogger
}

// NewOrgHandlers creates a new OrgHandlers
func NewOrgHandlers(orgService *orgs.Service, lookup middleware.OrgLookup, authz *middleware.Authorizer, audit *auth.AuditLogger) *OrgHandlers {
	return &OrgHandlers{
		orgService: orgService,
		lookup:     lookup,
		authz:      authz,
		audit:      audit,
	}
}

// RegisterRoutes registers organization routes
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	withOrg := middleware.OrgContextMiddleware(h.lookup)

	router.Handle("/organizations", middleware.RequireSession(http.HandlerFunc(h.CreateOrganization))).Methods("POST")
	router.Handle("/organizations", middleware.RequireSession(http.HandlerFunc(h.ListOrganizations))).Methods("GET")
	router.Handle("/organizations/by-slug/{org_slug}", withOrg(http.HandlerFunc(h.GetOrganization))).Methods("GET")
	inOrg := func(resource rbac.Resource, action rbac.Action, fn http.HandlerFunc) http.Handler {
		return middleware.RequireSession(withOrg(h.authz.RequireOrgPermission(resource, action)(fn)))
	}

	router.Handle("/organizations/{org_id}",
		inOrg(rbac.ResourceOrganization, rbac.ActionDelete, h.DeleteOrganization)).Methods("DELETE")
	router.Handle("/organizations/{org_id}/members",
		inOrg(rbac.ResourceChannel, rbac.ActionView, h.ListMembers)).Methods("GET")
	router.Handle("/organizations/{org_id}/members",
		inOrg(rbac.ResourceOrganization, rbac.ActionUpdate, h.AddMember)).Methods("POST")
}

type organizationResponse struct {
	Organization *identity.Organization `json:"organization"`
	Membership   *identity.Membership   `json:"membership,omitempty"`
}

// CreateOrganization creates a channel owned by the caller
func (h *OrgHandlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req orgs.CreateOrgRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	org, err := h.orgService.Create(r.Context(), userID(r), req)
	switch {
	case errors.Is(err, orgs.ErrTierRequired):
		_ = h.audit.LogFromRequest(r, auth.ActionOrgCreate, "organization", "", auth.StatusDenied, err)
		httputil.WriteForbidden(w, err.Error())
		return
	case errors.Is(err, orgs.ErrSlugTaken):
		httputil.WriteConflict(w, err.Error())
		return
	case errors.Is(err, orgs.ErrInvalidSlug):
		httputil.WriteBadRequest(w, err.Error())
		return
	case err != nil:
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = h.audit.LogFromRequest(r, auth.ActionOrgCreate, "organization", org.ID, auth.StatusSuccess, nil)
	_ = httputil.WriteCreated(w, org)
}

// ListOrganizations lists organizations for the authenticated user
func (h *OrgHandlers) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	list, err := h.orgService.ListForUser(r.Context(), userID(r))
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, list)
}

// GetOrganization returns the organization resolved from the route, with
// the caller's membership when signed in
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, organizationResponse{
		Organization: middleware.GetOrg(r),
		Membership:   middleware.GetMembership(r),
	})
}

// DeleteOrganization removes the organization and its memberships
func (h *OrgHandlers) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrg(r)
	err := h.orgService.Delete(r.Context(), userID(r), org.ID)
	switch {
	case errors.Is(err, orgs.ErrCannotDelete):
		_ = h.audit.LogFromRequest(r, auth.ActionOrgDelete, "organization", org.ID, auth.StatusDenied, err)
		httputil.WriteForbidden(w, err.Error())
		return
	case errors.Is(err, identity.ErrNotFound):
		httputil.WriteNotFoundError(w, "organization not found")
		return
	case err != nil:
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = h.audit.LogFromRequest(r, auth.ActionOrgDelete, "organization", org.ID, auth.StatusSuccess, nil)
	httputil.WriteNoContent(w)
}

// ListMembers lists the organization's memberships
func (h *OrgHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.orgService.ListMembers(r.Context(), middleware.GetOrg(r).ID)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, members)
}

// AddMember adds a registered user to the organization
func (h *OrgHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	var req orgs.AddMemberRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	org := middleware.GetOrg(r)
	req.Email = auth.NormalizeEmail(req.Email)

	m, err := h.orgService.AddMember(r.Context(), userID(r), org.ID, req)
	switch {
	case errors.Is(err, orgs.ErrNotOrgAdmin):
		_ = h.audit.LogAction(r.Context(), &auth.AuditEvent{
			UserID:         userID(r),
			OrganizationID: org.ID,
			Action:         auth.ActionOrgMemberAdd,
			ResourceType:   "membership",
			IPAddress:      h.audit.ClientIP(r),
			Status:         auth.StatusDenied,
			ErrorMessage:   err.Error(),
		})
		httputil.WriteForbidden(w, err.Error())
		return
	case errors.Is(err, orgs.ErrAlreadyMember):
		httputil.WriteConflict(w, err.Error())
		return
	case errors.Is(err, identity.ErrNotFound):
		httputil.WriteNotFoundError(w, "user not found")
		return
	case err != nil:
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = h.audit.LogAction(r.Context(), &auth.AuditEvent{
		UserID:         userID(r),
		OrganizationID: org.ID,
		Action:         auth.ActionOrgMemberAdd,
		ResourceType:   "membership",
		ResourceID:     m.ID,
		IPAddress:      h.audit.ClientIP(r),
		Status:         auth.StatusSuccess,
	})
	_ = httputil.WriteCreated(w, m)
}
