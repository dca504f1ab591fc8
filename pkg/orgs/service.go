package orgs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

// Service manages organizations ("channels") and their memberships
type Service struct {
	orgs   identity.OrganizationStore
	users  identity.UserStore
	gate   TierGate
	policy *rbac.Policy
	logger *observability.Logger
}

// NewService creates a new organization service
func NewService(orgs identity.OrganizationStore, users identity.UserStore, gate TierGate, logger *observability.Logger) *Service {
	return &Service{
		orgs:   orgs,
		users:  users,
		gate:   gate,
		policy: rbac.DefaultPolicy(),
		logger: logger,
	}
}

// Create makes a new organization owned by userID
func (s *Service) Create(ctx context.Context, userID string, req CreateOrgRequest) (*identity.Organization, error) {
	if !s.gate.CanCreateOrganization(ctx, userID) {
		return nil, ErrTierRequired
	}

	slug := generateSlug(req.Slug)
	if req.Slug == "" {
		slug = generateSlug(req.Name)
	}
	if slug == "" {
		return nil, ErrInvalidSlug
	}

	org := &identity.Organization{
		Name: strings.TrimSpace(req.Name),
		Slug: slug,
	}
	owner := &identity.Membership{
		UserID: userID,
		Role:   rbac.MembershipOwner,
	}
	if err := s.orgs.CreateOrganization(ctx, org, owner); err != nil {
		if errors.Is(err, identity.ErrConflict) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":         userID,
		"organization_id": org.ID,
		"slug":            org.Slug,
	}).Info("organization created")
	return org, nil
}

// GetBySlug returns the organization with slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*identity.Organization, error) {
	org, err := s.orgs.FindOrganizationBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetByID returns the organization with id
func (s *Service) GetByID(ctx context.Context, id string) (*identity.Organization, error) {
	org, err := s.orgs.FindOrganizationByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// Delete removes the organization. The actor's membership must grant
// organization:delete.
func (s *Service) Delete(ctx context.Context, actorID, orgID string) error {
	_, err := s.authorizeMember(ctx, orgID, actorID, rbac.ActionDelete)
	if errors.Is(err, errDenied) {
		return ErrCannotDelete
	}
	if err != nil {
		return err
	}
	if err := s.orgs.DeleteOrganization(ctx, orgID); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"organization_id": orgID,
		"actor_id":        actorID,
	}).Info("organization deleted")
	return nil
}

// ListForUser returns every organization the user belongs to
func (s *Service) ListForUser(ctx context.Context, userID string) ([]identity.Organization, error) {
	orgs, err := s.orgs.ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	if orgs == nil {
		orgs = []identity.Organization{}
	}
	return orgs, nil
}

// generateSlug lowercases name, turns spaces into dashes and drops anything
// outside [a-z0-9-]. Runs of dashes collapse to one.
func generateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}
