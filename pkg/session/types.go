package session

import (
	"errors"
	"time"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

var (
	// ErrSessionNotFound is returned for unknown, revoked and expired tokens
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotMember is returned when switching to an organization the user
	// does not belong to
	ErrNotMember = errors.New("not a member of the organization")
)

// Session is the persisted session record
type Session struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId"`
	TokenPrefix          string    `json:"tokenPrefix"`
	ActiveOrganizationID *string   `json:"activeOrganizationId"`
	IPAddress            string    `json:"ipAddress,omitempty"`
	UserAgent            string    `json:"userAgent,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	ExpiresAt            time.Time `json:"expiresAt"`

	// TokenHash is the store key and never leaves the process
	TokenHash string `json:"-"`
}

// Expired reports whether the session is past its expiry
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// User is the augmented user view attached to every session read
type User struct {
	ID               string             `json:"id"`
	Email            string             `json:"email"`
	Name             string             `json:"name"`
	Avatar           string             `json:"avatar,omitempty"`
	Role             rbac.EffectiveRole `json:"role"`
	SubscriptionID   *string            `json:"subscriptionId"`
	SubscriptionType *identity.Tier     `json:"subscriptionType"`
}

// Payload is what a session read returns
type Payload struct {
	User    User    `json:"user"`
	Session Session `json:"session"`
}

// Metadata describes the client that created a session
type Metadata struct {
	IPAddress string
	UserAgent string
}

// Created is returned once at login; Token is never retrievable again
type Created struct {
	Token   string  `json:"token"`
	Session Session `json:"session"`
}
