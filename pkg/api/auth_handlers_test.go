package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/middleware"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	u := env.signup("Ada@Example.com")
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, rbac.StoredRoleUser, u.StoredRole)
	assert.NotEmpty(t, u.ID)

	w := env.do("POST", "/api/users", map[string]string{
		"email": "ada@example.com", "name": "Again", "password": testPassword,
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do("POST", "/api/users", map[string]string{
		"email": "not-an-email", "name": "Bad", "password": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[httputil.ErrorResponse](t, w)
	assert.Equal(t, "email", body.Details["email"])
	assert.Equal(t, "min=8", body.Details["password"])

	assert.NotContains(t, env.do("POST", "/api/users", map[string]string{
		"email": "bob@example.com", "name": "Bob", "password": testPassword,
	}, "").Body.String(), "password")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.signup("ada@example.com")

	w := env.do("POST", "/api/sessions", map[string]string{"email": "ada@example.com", "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("POST", "/api/sessions", map[string]string{"email": "nobody@example.com", "password": testPassword}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("POST", "/api/sessions", map[string]string{"email": "ADA@example.com", "password": testPassword}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Contains(t, cookie.Value, "gz_")
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t, withLoginLimit(2))
	env.signup("ada@example.com")

	creds := map[string]string{"email": "ada@example.com", "password": "wrong-password"}
	assert.Equal(t, http.StatusUnauthorized, env.do("POST", "/api/sessions", creds, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do("POST", "/api/sessions", creds, "").Code)

	w := env.do("POST", "/api/sessions", creds, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Sign-up is not throttled
	env.signup("bob@example.com")
}

func TestLogin_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, withLoginLimit(2))
	env.signup("ada@example.com")

	var codes []int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest("POST", "/api/sessions",
			strings.NewReader(`{"email":"ada@example.com","password":"wrong-password"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		w := httptest.NewRecorder()
		env.server.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{401, 401, 429, 429, 429, 429}, codes)
}

func TestGetSession(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/session", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/session", nil, "gz_bogus").Code)

	u, token := env.member("ada@example.com")
	p := env.payload(token)
	assert.Equal(t, u.ID, p.User.ID)
	assert.Equal(t, "ada@example.com", p.User.Email)
	assert.Equal(t, rbac.EffectiveRoleUser, p.User.Role)
	assert.Nil(t, p.User.SubscriptionID)
	assert.Nil(t, p.User.SubscriptionType)
	assert.Nil(t, p.Session.ActiveOrganizationID)
	assert.Empty(t, p.Session.TokenHash)
}

func TestGetSession_Cookie(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.member("ada@example.com")

	req := httptest.NewRequest("GET", "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.member("ada@example.com")
	other := env.login("ada@example.com").Token

	w := env.do("DELETE", "/api/session", nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/session", nil, token).Code)
	assert.Equal(t, http.StatusOK, env.do("GET", "/api/session", nil, other).Code)
}

func TestSetActiveOrganization(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.member("owner@example.com")
	require.Equal(t, http.StatusCreated, env.purchase(ownerToken, "Business").Code)

	w := env.do("POST", "/api/organizations", map[string]string{"name": "Metro Desk"}, ownerToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	metro := decode[map[string]interface{}](t, w)
	w = env.do("POST", "/api/organizations", map[string]string{"name": "Sports Desk"}, ownerToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sports := decode[map[string]interface{}](t, w)

	// Selection at login picks the earliest owned organization
	token := env.login("owner@example.com").Token
	p := env.payload(token)
	require.NotNil(t, p.Session.ActiveOrganizationID)
	assert.Equal(t, metro["id"], *p.Session.ActiveOrganizationID)

	w = env.do("PUT", "/api/session/active-organization", map[string]string{"organizationId": sports["id"].(string)}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p = env.payload(token)
	assert.Equal(t, sports["id"], *p.Session.ActiveOrganizationID)

	// Empty reselects
	w = env.do("PUT", "/api/session/active-organization", map[string]string{"organizationId": ""}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, metro["id"], *env.payload(token).Session.ActiveOrganizationID)

	_, strangerToken := env.member("stranger@example.com")
	w = env.do("PUT", "/api/session/active-organization", map[string]string{"organizationId": metro["id"].(string)}, strangerToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, env.payload(strangerToken).Session.ActiveOrganizationID)
}
