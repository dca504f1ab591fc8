package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

// Membership returns the user's membership in the organization
func (s *Service) Membership(ctx context.Context, orgID, userID string) (*identity.Membership, error) {
	m, err := s.orgs.FindMembership(ctx, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListMembers returns the organization's memberships, oldest first
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]identity.Membership, error) {
	members, err := s.orgs.ListMembers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	if members == nil {
		members = []identity.Membership{}
	}
	return members, nil
}

// AddMember adds the user registered under req.Email to the organization.
// The actor's membership must grant organization:update; only owners can
// add owners.
func (s *Service) AddMember(ctx context.Context, actorID, orgID string, req AddMemberRequest) (*identity.Membership, error) {
	if !req.Role.Valid() {
		return nil, fmt.Errorf("invalid membership role %q", req.Role)
	}

	actor, err := s.authorizeMember(ctx, orgID, actorID, rbac.ActionUpdate)
	if errors.Is(err, errDenied) {
		return nil, ErrNotOrgAdmin
	}
	if err != nil {
		return nil, err
	}
	if req.Role == rbac.MembershipOwner && actor.Role != rbac.MembershipOwner {
		return nil, ErrNotOrgAdmin
	}

	user, err := s.users.FindUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	m := &identity.Membership{
		UserID:         user.ID,
		OrganizationID: orgID,
		Role:           req.Role,
	}
	if err := s.orgs.AddMembership(ctx, m); err != nil {
		if errors.Is(err, identity.ErrConflict) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"organization_id": orgID,
		"user_id":         user.ID,
		"role":            string(req.Role),
		"actor_id":        actorID,
	}).Info("organization member added")
	return m, nil
}

var errDenied = errors.New("denied")

// authorizeMember loads the actor's membership and checks that its role
// grants organization:<action>. errDenied covers non-members too.
func (s *Service) authorizeMember(ctx context.Context, orgID, actorID string, action rbac.Action) (*identity.Membership, error) {
	actor, err := s.orgs.FindMembership(ctx, orgID, actorID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, errDenied
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	if !s.policy.Authorize(actor.Role.PolicyRole(), rbac.ResourceOrganization, action) {
		return nil, errDenied
	}
	return actor, nil
}
