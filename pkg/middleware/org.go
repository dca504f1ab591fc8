package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gazette/pkg/contextkeys"
	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/identity"
)

// OrgLookup is the organization store surface the middleware needs
type OrgLookup interface {
	FindOrganizationByID(ctx context.Context, id string) (*identity.Organization, error)
	FindOrganizationBySlug(ctx context.Context, slug string) (*identity.Organization, error)
	FindMembership(ctx context.Context, organizationID, userID string) (*identity.Membership, error)
}

// OrgContextMiddleware resolves the {org_id} or {org_slug} route variable
// and adds the organization, plus the caller's membership when there is
// one, to the request context. Routes without either variable pass through.
func OrgContextMiddleware(orgs OrgLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)

			var org *identity.Organization
			var err error
			if id, ok := vars["org_id"]; ok {
				org, err = orgs.FindOrganizationByID(r.Context(), id)
			} else if slug, ok := vars["org_slug"]; ok {
				org, err = orgs.FindOrganizationBySlug(r.Context(), slug)
			} else {
				next.ServeHTTP(w, r)
				return
			}

			if errors.Is(err, identity.ErrNotFound) {
				httputil.WriteNotFoundError(w, "organization not found")
				return
			}
			if err != nil {
				httputil.WriteInternalError(w, r, err)
				return
			}

			ctx := contextkeys.WithOrg(r.Context(), org)
			if payload := GetSession(r); payload != nil {
				m, err := orgs.FindMembership(ctx, org.ID, payload.User.ID)
				switch {
				case err == nil:
					ctx = contextkeys.WithMembership(ctx, m)
				case !errors.Is(err, identity.ErrNotFound):
					httputil.WriteInternalError(w, r, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOrg returns the organization added by OrgContextMiddleware, or nil
func GetOrg(r *http.Request) *identity.Organization {
	org, _ := r.Context().Value(contextkeys.OrgKey).(*identity.Organization)
	return org
}

// GetMembership returns the caller's membership in GetOrg(r), or nil
func GetMembership(r *http.Request) *identity.Membership {
	m, _ := r.Context().Value(contextkeys.MembershipKey).(*identity.Membership)
	return m
}
