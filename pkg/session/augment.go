package session

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/observability"
)

// Augmentor attaches the freshly resolved role and subscription to a
// session on every read.
type Augmentor struct {
	users   identity.UserStore
	subs    identity.SubscriptionStore
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

// NewAugmentor creates a new session augmentor
func NewAugmentor(users identity.UserStore, subs identity.SubscriptionStore, metrics *observability.Metrics, logger *observability.Logger) *Augmentor {
	return &Augmentor{
		users:   users,
		subs:    subs,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Augment builds the session payload. SubscriptionID is the user's
// subscription link; SubscriptionType is set only while it is active. A
// missing user is an error; a failed subscription lookup resolves the role
// as if unsubscribed.
func (a *Augmentor) Augment(ctx context.Context, sess *Session) (*Payload, error) {
	user, err := a.users.FindUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}

	var tier *identity.Tier
	sub, err := a.subs.FindActiveSubscription(ctx, user.ID, a.now())
	if err != nil {
		a.logger.WithError(err).WithField("user_id", user.ID).Warn("subscription lookup failed, resolving role without tier")
	} else if sub != nil {
		t := sub.Tier
		tier = &t
	}

	role := ResolveRole(user.StoredRole, tier)
	a.metrics.RecordRoleResolution(string(role))

	return &Payload{
		User: User{
			ID:               user.ID,
			Email:            user.Email,
			Name:             user.Name,
			Avatar:           user.Avatar,
			Role:             role,
			SubscriptionID:   user.SubscriptionID,
			SubscriptionType: tier,
		},
		Session: *sess,
	}, nil
}
