package identity

import (
	"fmt"
	"time"

	"github.com/platinummonkey/gazette/pkg/rbac"
)

// Tier is a subscription type name. Names are case-sensitive.
type Tier string

const (
	TierFree     Tier = "Free"
	TierElite    Tier = "Elite"
	TierBusiness Tier = "Business"
)

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierElite, TierBusiness:
		return true
	}
	return false
}

// ParseTier validates a tier name
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown subscription tier %q", s)
	}
	return t, nil
}

// User represents an account
type User struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Avatar         string          `json:"avatar,omitempty"`
	StoredRole     rbac.StoredRole `json:"role"`
	EmailVerified  bool            `json:"email_verified"`
	PasswordHash   string          `json:"-"`
	SubscriptionID *string         `json:"subscription_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SubscriptionType is a catalog entry
type SubscriptionType struct {
	ID         string   `json:"id" yaml:"id"`
	Name       Tier     `json:"name" yaml:"name"`
	PriceCents int64    `json:"price_cents" yaml:"price_cents"`
	Features   []string `json:"features" yaml:"features"`
}

// Subscription binds a user to a subscription type for a validity window.
// Tier is resolved from the subscription type.
type Subscription struct {
	ID        string    `json:"id"`
	TypeID    string    `json:"type_id"`
	Tier      Tier      `json:"tier"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the subscription is active at now. Expired rows
// remain stored but are inactive.
func (s *Subscription) IsActive(now time.Time) bool {
	return s != nil && s.ExpiresAt.After(now)
}

// Organization is a channel: the tenant boundary for article authorship
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership joins a user to an organization with a role
type Membership struct {
	ID             string              `json:"id"`
	UserID         string              `json:"user_id"`
	OrganizationID string              `json:"organization_id"`
	Role           rbac.MembershipRole `json:"role"`
	CreatedAt      time.Time           `json:"created_at"`
}

// ArticleRef is the slice of an article the session layer cares about
type ArticleRef struct {
	ID             string    `json:"id"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
