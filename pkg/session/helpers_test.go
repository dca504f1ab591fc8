package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type world struct {
	t     *testing.T
	store *identity.MemoryStore
	now   time.Time
	types map[identity.Tier]string
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{t: t, store: identity.NewMemoryStore(), now: baseTime, types: map[identity.Tier]string{}}
	w.store.SetClock(func() time.Time { return w.now })
	for _, tier := range []identity.Tier{identity.TierFree, identity.TierElite, identity.TierBusiness} {
		st := &identity.SubscriptionType{Name: tier}
		require.NoError(t, w.store.UpsertSubscriptionType(context.Background(), st))
		w.types[tier] = st.ID
	}
	return w
}

func (w *world) clock() time.Time { return w.now }

func (w *world) advance(d time.Duration) { w.now = w.now.Add(d) }

func (w *world) user(email string, role rbac.StoredRole) *identity.User {
	w.t.Helper()
	u := &identity.User{Email: email, Name: email, StoredRole: role}
	require.NoError(w.t, w.store.CreateUser(context.Background(), u))
	return u
}

func (w *world) subscribe(userID string, tier identity.Tier, expiresAt time.Time) *identity.Subscription {
	w.t.Helper()
	sub := &identity.Subscription{TypeID: w.types[tier], ExpiresAt: expiresAt}
	require.NoError(w.t, w.store.CreateSubscription(context.Background(), userID, sub))
	return sub
}

func (w *world) org(slug string, ownerID string, role rbac.MembershipRole) *identity.Organization {
	w.t.Helper()
	org := &identity.Organization{Name: slug, Slug: slug}
	require.NoError(w.t, w.store.CreateOrganization(context.Background(), org, &identity.Membership{UserID: ownerID, Role: role}))
	return org
}

func (w *world) join(orgID, userID string, role rbac.MembershipRole) {
	w.t.Helper()
	require.NoError(w.t, w.store.AddMembership(context.Background(), &identity.Membership{
		UserID: userID, OrganizationID: orgID, Role: role,
	}))
}

func tierPtr(t identity.Tier) *identity.Tier { return &t }
