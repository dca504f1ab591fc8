package orgs

import (
	"context"
	"errors"

	"github.com/platinummonkey/gazette/pkg/rbac"
)

var (
	// ErrTierRequired is returned when a non-Business user creates a channel
	ErrTierRequired = errors.New("business subscription required to create organizations")
	// ErrSlugTaken is returned when the slug is already used
	ErrSlugTaken = errors.New("organization slug already taken")
	// ErrInvalidSlug is returned when no usable slug can be derived
	ErrInvalidSlug = errors.New("organization slug must contain letters or digits")
	// ErrNotOrgAdmin is returned when the actor may not manage members
	ErrNotOrgAdmin = errors.New("only organization owners and admins can manage members")
	// ErrCannotDelete is returned when the actor may not delete the organization
	ErrCannotDelete = errors.New("only organization owners and admins can delete the organization")
	// ErrAlreadyMember is returned when adding an existing member
	ErrAlreadyMember = errors.New("user is already a member")
)

// TierGate decides whether a user's subscription allows organization
// creation. Implementations fail closed.
type TierGate interface {
	CanCreateOrganization(ctx context.Context, userID string) bool
}

// CreateOrgRequest is the payload for creating an organization
type CreateOrgRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
	Slug string `json:"slug,omitempty" validate:"omitempty,max=100"`
}

// AddMemberRequest is the payload for adding a member
type AddMemberRequest struct {
	Email string              `json:"email" validate:"required,email"`
	Role  rbac.MembershipRole `json:"role" validate:"required,oneof=owner admin member"`
}
