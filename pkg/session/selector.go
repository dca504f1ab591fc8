package session

import (
	"context"
	"time"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

// Selection sources, also used as metric labels
const (
	SourceMembership = "membership"
	SourceArticle    = "article"
	SourceNone       = "none"
	SourceError      = "error"
)

// Selector picks the organization a new session starts in
type Selector struct {
	orgs     identity.OrganizationStore
	subs     identity.SubscriptionStore
	articles identity.ArticleStore
	metrics  *observability.Metrics
	logger   *observability.Logger
	now      func() time.Time
}

// NewSelector creates a new active-organization selector
func NewSelector(
	orgs identity.OrganizationStore,
	subs identity.SubscriptionStore,
	articles identity.ArticleStore,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Selector {
	return &Selector{
		orgs:     orgs,
		subs:     subs,
		articles: articles,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Select returns the user's active organization or nil.
//
// The earliest owner or admin membership wins. Without one, a Business
// subscriber lands in the organization of their most recent article. Lookup
// failures are logged and yield nil.
func (s *Selector) Select(ctx context.Context, userID string) *string {
	orgID, source, err := s.selectOrg(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("active organization selection failed")
		s.metrics.RecordOrgSelection(SourceError)
		return nil
	}
	s.metrics.RecordOrgSelection(source)
	return orgID
}

func (s *Selector) selectOrg(ctx context.Context, userID string) (*string, string, error) {
	memberships, err := s.orgs.FindMemberships(ctx, userID, rbac.MembershipOwner, rbac.MembershipAdmin)
	if err != nil {
		return nil, "", err
	}
	if len(memberships) > 0 {
		id := memberships[0].OrganizationID
		return &id, SourceMembership, nil
	}

	sub, err := s.subs.FindActiveSubscription(ctx, userID, s.now())
	if err != nil {
		return nil, "", err
	}
	if sub == nil || sub.Tier != identity.TierBusiness {
		return nil, SourceNone, nil
	}

	article, err := s.articles.FindMostRecentArticleByAuthor(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if article == nil || article.OrganizationID == nil {
		return nil, SourceNone, nil
	}
	id := *article.OrganizationID
	return &id, SourceArticle, nil
}
