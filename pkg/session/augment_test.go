package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

type failingSubs struct {
	*identity.MemoryStore
}

func (failingSubs) FindActiveSubscription(context.Context, string, time.Time) (*identity.Subscription, error) {
	return nil, errors.New("pool exhausted")
}

func newTestAugmentor(w *world, subs identity.SubscriptionStore) *Augmentor {
	a := NewAugmentor(w.store, subs, nil, observability.NopLogger())
	a.now = w.clock
	return a
}

func TestAugment_RecomputesRoleOnEveryRead(t *testing.T) {
	w := newWorld(t)
	u := w.user("reader@example.com", rbac.StoredRoleUser)
	sub := w.subscribe(u.ID, identity.TierElite, baseTime.Add(time.Hour))
	a := newTestAugmentor(w, w.store)
	sess := &Session{ID: "s1", UserID: u.ID}

	payload, err := a.Augment(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, rbac.EffectiveRoleReader, payload.User.Role)
	require.NotNil(t, payload.User.SubscriptionType)
	assert.Equal(t, identity.TierElite, *payload.User.SubscriptionType)
	require.NotNil(t, payload.User.SubscriptionID)
	assert.Equal(t, sub.ID, *payload.User.SubscriptionID)
	assert.Equal(t, "s1", payload.Session.ID)

	// Expiry alone drops the role back to user
	w.advance(2 * time.Hour)
	payload, err = a.Augment(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, rbac.EffectiveRoleUser, payload.User.Role)
	assert.Nil(t, payload.User.SubscriptionType)
	require.NotNil(t, payload.User.SubscriptionID)
}

func TestAugment_UserFields(t *testing.T) {
	w := newWorld(t)
	u := &identity.User{Email: "ed@example.com", Name: "Ed", Avatar: "https://cdn.example.com/ed.png", StoredRole: rbac.StoredRoleAdmin}
	require.NoError(t, w.store.CreateUser(context.Background(), u))

	payload, err := newTestAugmentor(w, w.store).Augment(context.Background(), &Session{UserID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, User{
		ID:     u.ID,
		Email:  "ed@example.com",
		Name:   "Ed",
		Avatar: "https://cdn.example.com/ed.png",
		Role:   rbac.EffectiveRoleAdmin,
	}, payload.User)
}

func TestAugment_SubscriptionFailureDegrades(t *testing.T) {
	w := newWorld(t)
	u := w.user("biz@example.com", rbac.StoredRoleEditor)
	w.subscribe(u.ID, identity.TierBusiness, baseTime.Add(time.Hour))

	payload, err := newTestAugmentor(w, failingSubs{w.store}).Augment(context.Background(), &Session{UserID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, rbac.EffectiveRoleUser, payload.User.Role)
	assert.Nil(t, payload.User.SubscriptionType)
}

func TestAugment_MissingUser(t *testing.T) {
	w := newWorld(t)
	_, err := newTestAugmentor(w, w.store).Augment(context.Background(), &Session{UserID: "gone"})
	assert.ErrorIs(t, err, identity.ErrNotFound)
}
