package billing

import (
	"errors"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

var (
	// ErrUnknownTier is returned for tiers missing from the catalog
	ErrUnknownTier = errors.New("unknown subscription tier")
	// ErrNoActiveSubscription is returned when cancelling without one
	ErrNoActiveSubscription = errors.New("no active subscription")
)

// Event classifies what a purchase does to the caller's subscription
type Event string

const (
	EventPurchase  Event = "purchase"
	EventRenew     Event = "renew"
	EventUpgrade   Event = "upgrade"
	EventDowngrade Event = "downgrade"
	EventCancel    Event = "cancel"
)

// Action is the subscription permission the event requires
func (e Event) Action() rbac.Action {
	switch e {
	case EventUpgrade:
		return rbac.ActionUpgrade
	case EventDowngrade:
		return rbac.ActionDowngrade
	case EventCancel:
		return rbac.ActionCancel
	default:
		return rbac.ActionPurchase
	}
}

// PurchaseResult is returned by Purchase
type PurchaseResult struct {
	Event        Event                  `json:"event"`
	Subscription *identity.Subscription `json:"subscription"`
	// Promoted is set when the purchase raised the stored role
	Promoted   bool   `json:"promoted,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// DefaultCatalog is the subscription catalog seeded when configuration
// provides none.
func DefaultCatalog() []identity.SubscriptionType {
	return []identity.SubscriptionType{
		{
			Name:       identity.TierFree,
			PriceCents: 0,
			Features:   []string{"Read public articles", "Follow channels"},
		},
		{
			Name:       identity.TierElite,
			PriceCents: 999,
			Features:   []string{"Ad-free reading", "Full archive access", "Newsletter digest"},
		},
		{
			Name:       identity.TierBusiness,
			PriceCents: 2999,
			Features:   []string{"Publish articles", "Create and manage channels", "Business tools"},
		},
	}
}
