package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gazette/pkg/auth"
	"github.com/platinummonkey/gazette/pkg/billing"
	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/middleware"
	"github.com/platinummonkey/gazette/pkg/notify"
	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/orgs"
	"github.com/platinummonkey/gazette/pkg/rbac"
	"github.com/platinummonkey/gazette/pkg/session"
)

const testPassword = "correct-horse"

type testEnv struct {
	t        *testing.T
	store    *identity.MemoryStore
	previews *notify.PreviewNotifier
	metrics  *observability.Metrics
	server   *Server
}

type envOption func(*Deps)

func withLoginLimit(n int) envOption {
	return func(d *Deps) {
		d.LoginLimiter = middleware.NewRateLimiter(&middleware.RateLimitConfig{
			RequestsPerWindow: n,
			WindowDuration:    time.Minute,
		})
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := observability.NopLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	store := identity.NewMemoryStore()
	catalog := billing.NewCatalogCache(store, time.Minute, metrics)
	require.NoError(t, catalog.Seed(ctx, billing.DefaultCatalog()))

	previews := notify.NewPreviewNotifier("http://gazette.test", 10, time.Hour)
	billingService := billing.NewService(store, store, catalog, previews, metrics, logger)

	deps := Deps{
		Store:      store,
		Auth:       auth.NewService(store, logger),
		Sessions:   session.NewManager(session.NewMemoryStore(), store, session.DefaultTTL, metrics, logger),
		Billing:    billingService,
		Orgs:       orgs.NewService(store, store, billingService, logger),
		Authorizer: middleware.NewAuthorizer(nil, metrics),
		Previews:   previews,
		Metrics:    metrics,
		Logger:     logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &testEnv{
		t:        t,
		store:    store,
		previews: previews,
		metrics:  metrics,
		server:   NewServer(deps),
	}
}

// do sends a JSON request, authenticated when token is non-empty
func (e *testEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// signup registers email and returns the new user
func (e *testEnv) signup(email string) *identity.User {
	e.t.Helper()
	w := e.do("POST", "/api/users", map[string]string{
		"email":    email,
		"name":     "Reporter " + email,
		"password": testPassword,
	}, "")
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*identity.User](e.t, w)
}

// login returns a fresh session for email
func (e *testEnv) login(email string) *session.Created {
	e.t.Helper()
	w := e.do("POST", "/api/sessions", map[string]string{"email": email, "password": testPassword}, "")
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*session.Created](e.t, w)
}

// member signs up and logs in email, returning the user and a token
func (e *testEnv) member(email string) (*identity.User, string) {
	e.t.Helper()
	u := e.signup(email)
	return u, e.login(email).Token
}

func (e *testEnv) admin(email string) (*identity.User, string) {
	e.t.Helper()
	u := e.signup(email)
	require.NoError(e.t, e.store.UpdateStoredRole(context.Background(), u.ID, rbac.StoredRoleAdmin))
	return u, e.login(email).Token
}

func (e *testEnv) purchase(token string, tier identity.Tier) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do("POST", "/api/subscriptions", map[string]string{"tier": string(tier)}, token)
}

func (e *testEnv) payload(token string) *session.Payload {
	e.t.Helper()
	w := e.do("GET", "/api/session", nil, token)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	return decode[*session.Payload](e.t, w)
}
