package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

func TestOrgContextMiddleware(t *testing.T) {
	store := identity.NewMemoryStore()
	ctx := context.Background()
	org := &identity.Organization{Name: "Metro", Slug: "metro"}
	require.NoError(t, store.CreateOrganization(ctx, org, &identity.Membership{UserID: "owner", Role: rbac.MembershipOwner}))

	var gotOrg *identity.Organization
	var gotMembership *identity.Membership
	router := mux.NewRouter()
	router.Use(OrgContextMiddleware(store))
	capture := func(w http.ResponseWriter, r *http.Request) {
		gotOrg = GetOrg(r)
		gotMembership = GetMembership(r)
		w.WriteHeader(http.StatusOK)
	}
	router.HandleFunc("/orgs/{org_id}", capture)
	router.HandleFunc("/by-slug/{org_slug}", capture)
	router.HandleFunc("/plain", capture)

	serve := func(path string, p bool) *httptest.ResponseRecorder {
		gotOrg, gotMembership = nil, nil
		req := httptest.NewRequest("GET", path, nil)
		if p {
			req = withPayload(req, payloadFor("owner", rbac.EffectiveRoleEditor))
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := serve("/orgs/"+org.ID, true)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotOrg)
	assert.Equal(t, "metro", gotOrg.Slug)
	require.NotNil(t, gotMembership)
	assert.Equal(t, rbac.MembershipOwner, gotMembership.Role)

	w = serve("/by-slug/metro", false)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotOrg)
	assert.Nil(t, gotMembership)

	w = serve("/orgs/missing", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve("/plain", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, gotOrg)
}
