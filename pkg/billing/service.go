package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/notify"
	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

// Service manages subscription purchases and renewals
type Service struct {
	users    identity.UserStore
	subs     identity.SubscriptionStore
	catalog  *CatalogCache
	notifier notify.Notifier
	metrics  *observability.Metrics
	logger   *observability.Logger
	now      func() time.Time
}

// NewService creates a new billing service. notifier may be nil, in which
// case no receipts are sent.
func NewService(
	users identity.UserStore,
	subs identity.SubscriptionStore,
	catalog *CatalogCache,
	notifier notify.Notifier,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Service {
	return &Service{
		users:    users,
		subs:     subs,
		catalog:  catalog,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Catalog returns the catalog the service prices against
func (s *Service) Catalog() *CatalogCache {
	return s.catalog
}

// Classify reports what buying tier would do to the user's current
// subscription without changing anything.
func (s *Service) Classify(ctx context.Context, userID string, tier identity.Tier) (Event, error) {
	target, err := s.catalog.Lookup(ctx, tier)
	if err != nil {
		return "", err
	}
	current, err := s.subs.FindActiveSubscription(ctx, userID, s.now())
	if err != nil {
		return "", fmt.Errorf("failed to load subscription: %w", err)
	}
	return s.classify(ctx, current, target)
}

func (s *Service) classify(ctx context.Context, current *identity.Subscription, target *identity.SubscriptionType) (Event, error) {
	if current == nil {
		return EventPurchase, nil
	}
	if current.Tier == target.Name {
		return EventRenew, nil
	}
	existing, err := s.catalog.Lookup(ctx, current.Tier)
	if err != nil {
		return "", err
	}
	if target.PriceCents > existing.PriceCents {
		return EventUpgrade, nil
	}
	return EventDowngrade, nil
}

// Purchase buys, renews, upgrades or downgrades the user's subscription.
// The subscription row is created when the user has none; otherwise it is
// pointed at the new tier and extended by one month from the later of now
// and its current expiry.
func (s *Service) Purchase(ctx context.Context, userID string, tier identity.Tier) (*PurchaseResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "billing.Purchase")
	defer span.End()
	span.SetAttributes(attribute.String("gazette.tier", string(tier)))

	result, err := s.purchase(ctx, userID, tier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("gazette.subscription_event", string(result.Event)))
	return result, nil
}

func (s *Service) purchase(ctx context.Context, userID string, tier identity.Tier) (*PurchaseResult, error) {
	target, err := s.catalog.Lookup(ctx, tier)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()
	existing, err := s.subs.FindSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	var active *identity.Subscription
	if existing.IsActive(now) {
		active = existing
	}
	event, err := s.classify(ctx, active, target)
	if err != nil {
		return nil, err
	}

	var sub *identity.Subscription
	if existing == nil {
		sub = &identity.Subscription{
			ID:        uuid.NewString(),
			TypeID:    target.ID,
			Tier:      target.Name,
			ExpiresAt: now.AddDate(0, 1, 0),
		}
		if err := s.subs.CreateSubscription(ctx, userID, sub); err != nil {
			return nil, fmt.Errorf("failed to create subscription: %w", err)
		}
	} else {
		sub = existing
		base := now
		if sub.ExpiresAt.After(now) {
			base = sub.ExpiresAt
		}
		sub.TypeID = target.ID
		sub.Tier = target.Name
		sub.ExpiresAt = base.AddDate(0, 1, 0)
		if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
			return nil, fmt.Errorf("failed to update subscription: %w", err)
		}
	}

	result := &PurchaseResult{Event: event, Subscription: sub}

	if target.Name == identity.TierBusiness && user.StoredRole == rbac.StoredRoleUser {
		if err := s.users.UpdateStoredRole(ctx, userID, rbac.StoredRoleEditor); err != nil {
			return nil, fmt.Errorf("failed to promote user: %w", err)
		}
		result.Promoted = true
		s.logger.WithField("user_id", userID).Info("user promoted to editor by business subscription")
	}

	s.metrics.RecordSubscriptionEvent(string(event), string(target.Name))
	s.logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"tier":       string(target.Name),
		"event":      string(event),
		"expires_at": sub.ExpiresAt,
	}).Info("subscription updated")

	result.PreviewURL = s.sendReceipt(ctx, user, event, target, sub)
	return result, nil
}

// sendReceipt mails the receipt. Failures are logged and never fail the
// purchase.
func (s *Service) sendReceipt(ctx context.Context, user *identity.User, event Event, st *identity.SubscriptionType, sub *identity.Subscription) string {
	if s.notifier == nil {
		return ""
	}
	html, err := notify.RenderReceipt(notify.ReceiptData{
		Name:       user.Name,
		Event:      string(event),
		Tier:       string(st.Name),
		PriceCents: st.PriceCents,
		ExpiresAt:  sub.ExpiresAt,
	})
	if err == nil {
		var receipt *notify.Receipt
		receipt, err = s.notifier.Send(ctx, notify.Message{
			To:      user.Email,
			Subject: fmt.Sprintf("Your Gazette %s subscription", st.Name),
			HTML:    html,
		})
		if err == nil {
			s.metrics.RecordMail("receipt", nil)
			return receipt.PreviewURL
		}
	}
	s.metrics.RecordMail("receipt", err)
	s.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to send subscription receipt")
	return ""
}

// Cancel expires the user's active subscription immediately. The row is
// kept so a later purchase reuses it.
func (s *Service) Cancel(ctx context.Context, userID string) (*identity.Subscription, error) {
	now := s.now()
	sub, err := s.subs.FindActiveSubscription(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil {
		return nil, ErrNoActiveSubscription
	}
	sub.ExpiresAt = now
	if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	s.metrics.RecordSubscriptionEvent(string(EventCancel), string(sub.Tier))
	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"tier":    string(sub.Tier),
	}).Info("subscription cancelled")
	return sub, nil
}

// ActiveTier returns the user's active tier, or nil when unsubscribed
func (s *Service) ActiveTier(ctx context.Context, userID string) (*identity.Tier, error) {
	sub, err := s.subs.FindActiveSubscription(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil {
		return nil, nil
	}
	tier := sub.Tier
	return &tier, nil
}

// CanCreateOrganization reports whether the user's active tier allows
// creating organizations. Lookup failures deny.
func (s *Service) CanCreateOrganization(ctx context.Context, userID string) bool {
	tier, err := s.ActiveTier(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("tier lookup failed, denying organization creation")
		return false
	}
	return tier != nil && *tier == identity.TierBusiness
}

// RefreshTierGauge recomputes the active subscription gauge for every tier
func (s *Service) RefreshTierGauge(ctx context.Context) error {
	counts, err := s.subs.CountActiveSubscriptions(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to count subscriptions: %w", err)
	}
	for _, tier := range []identity.Tier{identity.TierFree, identity.TierElite, identity.TierBusiness} {
		s.metrics.SetActiveSubscriptions(string(tier), counts[tier])
	}
	return nil
}
