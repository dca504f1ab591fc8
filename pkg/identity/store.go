package identity

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/gazette/pkg/rbac"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key is already taken
	ErrConflict = errors.New("already exists")
)

// UserStore persists users
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateStoredRole(ctx context.Context, userID string, role rbac.StoredRole) error
}

// SubscriptionStore persists subscriptions and the subscription catalog
type SubscriptionStore interface {
	// FindActiveSubscription returns nil without error when the user has no
	// subscription or it expired before now.
	FindActiveSubscription(ctx context.Context, userID string, now time.Time) (*Subscription, error)
	// FindSubscription returns the user's subscription regardless of expiry,
	// or nil without error when there is none.
	FindSubscription(ctx context.Context, userID string) (*Subscription, error)
	// CreateSubscription inserts sub and attaches it to the user
	CreateSubscription(ctx context.Context, userID string, sub *Subscription) error
	UpdateSubscription(ctx context.Context, sub *Subscription) error

	UpsertSubscriptionType(ctx context.Context, st *SubscriptionType) error
	FindSubscriptionType(ctx context.Context, tier Tier) (*SubscriptionType, error)
	ListSubscriptionTypes(ctx context.Context) ([]SubscriptionType, error)
	CountActiveSubscriptions(ctx context.Context, now time.Time) (map[Tier]int, error)
}

// OrganizationStore persists organizations and memberships
type OrganizationStore interface {
	// CreateOrganization inserts org together with its first membership
	CreateOrganization(ctx context.Context, org *Organization, owner *Membership) error
	FindOrganizationByID(ctx context.Context, id string) (*Organization, error)
	FindOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	ListOrganizationsForUser(ctx context.Context, userID string) ([]Organization, error)
	// DeleteOrganization removes the organization and its memberships.
	// Articles keep existing without an organization.
	DeleteOrganization(ctx context.Context, id string) error

	AddMembership(ctx context.Context, m *Membership) error
	FindMembership(ctx context.Context, organizationID, userID string) (*Membership, error)
	// FindMemberships lists the user's memberships, earliest first. With
	// roles given, only memberships holding one of them are returned.
	FindMemberships(ctx context.Context, userID string, roles ...rbac.MembershipRole) ([]Membership, error)
	// ListMembers lists an organization's memberships, earliest first
	ListMembers(ctx context.Context, organizationID string) ([]Membership, error)
}

// ArticleStore exposes the article lookups the session layer needs
type ArticleStore interface {
	// FindMostRecentArticleByAuthor returns nil without error when the user
	// authored nothing.
	FindMostRecentArticleByAuthor(ctx context.Context, userID string) (*ArticleRef, error)
}

// Store is the full identity store
type Store interface {
	UserStore
	SubscriptionStore
	OrganizationStore
	ArticleStore
}
