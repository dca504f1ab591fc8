package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

func TestCreateOrganization(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.member("owner@example.com")

	w := env.do("POST", "/api/organizations", map[string]string{"name": "Metro Desk"}, token)
	assert.Equal(t, http.StatusForbidden, w.Code, "free users cannot create channels")

	require.Equal(t, http.StatusCreated, env.purchase(token, identity.TierBusiness).Code)

	w = env.do("POST", "/api/organizations", map[string]string{"name": "Metro Desk"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	org := decode[identity.Organization](t, w)
	assert.Equal(t, "metro-desk", org.Slug)

	w = env.do("POST", "/api/organizations", map[string]string{"name": "Metro", "slug": "Metro Desk"}, token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do("POST", "/api/organizations", map[string]string{"name": "!!!"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/api/organizations", map[string]string{"name": "Metro"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("GET", "/api/organizations", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]identity.Organization](t, w), 1)

	_, otherToken := env.member("other@example.com")
	w = env.do("GET", "/api/organizations", nil, otherToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestGetOrganizationBySlug(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.member("owner@example.com")
	require.Equal(t, http.StatusCreated, env.purchase(token, identity.TierBusiness).Code)
	require.Equal(t, http.StatusCreated, env.do("POST", "/api/organizations", map[string]string{"name": "Metro Desk"}, token).Code)

	w := env.do("GET", "/api/organizations/by-slug/metro-desk", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[organizationResponse](t, w)
	assert.Equal(t, "Metro Desk", got.Organization.Name)
	require.NotNil(t, got.Membership)
	assert.Equal(t, rbac.MembershipOwner, got.Membership.Role)

	w = env.do("GET", "/api/organizations/by-slug/metro-desk", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[organizationResponse](t, w).Membership)

	assert.Equal(t, http.StatusNotFound, env.do("GET", "/api/organizations/by-slug/nope", nil, "").Code)
}

func TestAddMember(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.member("owner@example.com")
	require.Equal(t, http.StatusCreated, env.purchase(ownerToken, identity.TierBusiness).Code)
	w := env.do("POST", "/api/organizations", map[string]string{"name": "Metro Desk"}, ownerToken)
	require.Equal(t, http.StatusCreated, w.Code)
	org := decode[identity.Organization](t, w)
	path := "/api/organizations/" + org.ID + "/members"

	writer, writerToken := env.member("writer@example.com")
	env.signup("editor@example.com")

	w = env.do("POST", path, map[string]string{"email": "Writer@Example.com", "role": "member"}, ownerToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	m := decode[identity.Membership](t, w)
	assert.Equal(t, writer.ID, m.UserID)
	assert.Equal(t, rbac.MembershipMember, m.Role)

	assert.Equal(t, http.StatusConflict,
		env.do("POST", path, map[string]string{"email": "writer@example.com", "role": "member"}, ownerToken).Code)

	assert.Equal(t, http.StatusForbidden,
		env.do("POST", path, map[string]string{"email": "editor@example.com", "role": "member"}, writerToken).Code,
		"members cannot add members")

	assert.Equal(t, http.StatusNotFound,
		env.do("POST", path, map[string]string{"email": "ghost@example.com", "role": "member"}, ownerToken).Code)

	assert.Equal(t, http.StatusBadRequest,
		env.do("POST", path, map[string]string{"email": "editor@example.com", "role": "chief"}, ownerToken).Code)

	assert.Equal(t, http.StatusNotFound,
		env.do("POST", "/api/organizations/missing/members", map[string]string{"email": "editor@example.com", "role": "member"}, ownerToken).Code)

	// the new member's next session starts in no organization: members are
	// not selected automatically
	assert.Nil(t, env.payload(env.login("writer@example.com").Token).Session.ActiveOrganizationID)
}

func TestOrganizationMembersAndDelete(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.member("owner@example.com")
	require.Equal(t, http.StatusCreated, env.purchase(ownerToken, identity.TierBusiness).Code)
	w := env.do("POST", "/api/organizations", map[string]string{"name": "Metro Desk"}, ownerToken)
	require.Equal(t, http.StatusCreated, w.Code)
	org := decode[identity.Organization](t, w)
	path := "/api/organizations/" + org.ID

	_, writerToken := env.member("writer@example.com")
	require.Equal(t, http.StatusCreated,
		env.do("POST", path+"/members", map[string]string{"email": "writer@example.com", "role": "member"}, ownerToken).Code)

	_, outsiderToken := env.member("outsider@example.com")
	require.Equal(t, http.StatusCreated, env.purchase(outsiderToken, identity.TierBusiness).Code)
	outsiderToken = env.login("outsider@example.com").Token

	t.Run("members list", func(t *testing.T) {
		w := env.do("GET", path+"/members", nil, writerToken)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		members := decode[[]identity.Membership](t, w)
		require.Len(t, members, 2)
		assert.Equal(t, rbac.MembershipOwner, members[0].Role)

		w = env.do("GET", path+"/members", nil, outsiderToken)
		assert.Equal(t, http.StatusForbidden, w.Code, "editors outside the organization")
		assert.Contains(t, w.Body.String(), "not a member of the organization")

		assert.Equal(t, http.StatusUnauthorized, env.do("GET", path+"/members", nil, "").Code)
	})

	t.Run("member cannot delete", func(t *testing.T) {
		w := env.do("DELETE", path, nil, writerToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "role member does not grant organization:delete")
	})

	t.Run("owner deletes", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, env.do("DELETE", path, nil, ownerToken).Code)
		assert.Equal(t, http.StatusNotFound, env.do("GET", path+"/members", nil, ownerToken).Code)
		assert.Equal(t, http.StatusNotFound, env.do("GET", "/api/organizations/by-slug/metro-desk", nil, "").Code)
	})
}
