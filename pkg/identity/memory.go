package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gazette/pkg/rbac"
)

// MemoryStore is an in-process Store used when no database is configured
// and in tests.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	users         map[string]*User
	subscriptions map[string]*Subscription
	types         map[Tier]*SubscriptionType
	orgs          map[string]*Organization
	members       []*Membership
	articles      []memoryArticle
}

type memoryArticle struct {
	ref     ArticleRef
	authors []string
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		users:         make(map[string]*User),
		subscriptions: make(map[string]*Subscription),
		types:         make(map[Tier]*SubscriptionType),
		orgs:          make(map[string]*Organization),
	}
}

var _ Store = (*MemoryStore)(nil)

// SetClock overrides the timestamp source for created rows
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddArticle records an article and its co-authors
func (s *MemoryStore) AddArticle(ref ArticleRef, authorIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = s.now()
	}
	s.articles = append(s.articles, memoryArticle{ref: ref, authors: append([]string(nil), authorIDs...)})
}

func (s *MemoryStore) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return fmt.Errorf("failed to create user: %w", ErrConflict)
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.StoredRole == "" {
		user.StoredRole = rbac.StoredRoleUser
	}
	user.CreatedAt = s.now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) FindUserByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateStoredRole(_ context.Context, userID string, role rbac.StoredRole) error {
	if !role.Valid() {
		return fmt.Errorf("invalid stored role %q", role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.StoredRole = role
	u.UpdatedAt = s.now()
	return nil
}

// subscriptionFor joins the user's subscription with its type. Caller
// holds the lock.
func (s *MemoryStore) subscriptionFor(userID string) *Subscription {
	u, ok := s.users[userID]
	if !ok || u.SubscriptionID == nil {
		return nil
	}
	sub, ok := s.subscriptions[*u.SubscriptionID]
	if !ok {
		return nil
	}
	cp := *sub
	for _, st := range s.types {
		if st.ID == cp.TypeID {
			cp.Tier = st.Name
		}
	}
	return &cp
}

func (s *MemoryStore) FindActiveSubscription(_ context.Context, userID string, now time.Time) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub := s.subscriptionFor(userID)
	if !sub.IsActive(now) {
		return nil, nil
	}
	return sub, nil
}

func (s *MemoryStore) FindSubscription(_ context.Context, userID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriptionFor(userID), nil
}

func (s *MemoryStore) CreateSubscription(_ context.Context, userID string, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.CreatedAt = s.now()
	sub.UpdatedAt = sub.CreatedAt
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	id := sub.ID
	u.SubscriptionID = &id
	return nil
}

func (s *MemoryStore) UpdateSubscription(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.subscriptions[sub.ID]
	if !ok {
		return ErrNotFound
	}
	existing.TypeID = sub.TypeID
	existing.ExpiresAt = sub.ExpiresAt
	existing.UpdatedAt = s.now()
	sub.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *MemoryStore) UpsertSubscriptionType(_ context.Context, st *SubscriptionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.types[st.Name]; ok {
		st.ID = existing.ID
	} else if st.ID == "" {
		st.ID = uuid.NewString()
	}
	cp := *st
	cp.Features = append([]string(nil), st.Features...)
	s.types[st.Name] = &cp
	return nil
}

func (s *MemoryStore) FindSubscriptionType(_ context.Context, tier Tier) (*SubscriptionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.types[tier]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) ListSubscriptionTypes(_ context.Context) ([]SubscriptionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SubscriptionType, 0, len(s.types))
	for _, st := range s.types {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceCents != out[j].PriceCents {
			return out[i].PriceCents < out[j].PriceCents
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) CountActiveSubscriptions(_ context.Context, now time.Time) (map[Tier]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]Tier, len(s.types))
	for _, st := range s.types {
		names[st.ID] = st.Name
	}
	counts := make(map[Tier]int)
	for _, sub := range s.subscriptions {
		if sub.IsActive(now) {
			counts[names[sub.TypeID]]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) CreateOrganization(_ context.Context, org *Organization, owner *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orgs {
		if o.Slug == org.Slug {
			return fmt.Errorf("failed to create organization: %w", ErrConflict)
		}
	}
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	org.CreatedAt = s.now()
	cp := *org
	s.orgs[org.ID] = &cp

	if owner.ID == "" {
		owner.ID = uuid.NewString()
	}
	owner.OrganizationID = org.ID
	owner.CreatedAt = org.CreatedAt
	m := *owner
	s.members = append(s.members, &m)
	return nil
}

func (s *MemoryStore) FindOrganizationByID(_ context.Context, id string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *MemoryStore) FindOrganizationBySlug(_ context.Context, slug string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, org := range s.orgs {
		if org.Slug == slug {
			cp := *org
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListOrganizationsForUser(_ context.Context, userID string) ([]Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Organization
	for _, m := range s.sortedMembers() {
		if m.UserID != userID {
			continue
		}
		if org, ok := s.orgs[m.OrganizationID]; ok {
			out = append(out, *org)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteOrganization(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[id]; !ok {
		return ErrNotFound
	}
	delete(s.orgs, id)

	kept := s.members[:0]
	for _, m := range s.members {
		if m.OrganizationID != id {
			kept = append(kept, m)
		}
	}
	s.members = kept

	for i := range s.articles {
		if ref := &s.articles[i].ref; ref.OrganizationID != nil && *ref.OrganizationID == id {
			ref.OrganizationID = nil
		}
	}
	return nil
}

func (s *MemoryStore) AddMembership(_ context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if existing.UserID == m.UserID && existing.OrganizationID == m.OrganizationID {
			return fmt.Errorf("failed to add member: %w", ErrConflict)
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	cp := *m
	s.members = append(s.members, &cp)
	return nil
}

func (s *MemoryStore) FindMembership(_ context.Context, organizationID, userID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members {
		if m.OrganizationID == organizationID && m.UserID == userID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindMemberships(_ context.Context, userID string, roles ...rbac.MembershipRole) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Membership
	for _, m := range s.sortedMembers() {
		if m.UserID != userID {
			continue
		}
		if len(roles) > 0 && !hasRole(roles, m.Role) {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) ListMembers(_ context.Context, organizationID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Membership
	for _, m := range s.sortedMembers() {
		if m.OrganizationID == organizationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindMostRecentArticleByAuthor(_ context.Context, userID string) (*ArticleRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *ArticleRef
	for i := range s.articles {
		a := &s.articles[i]
		if !contains(a.authors, userID) {
			continue
		}
		if latest == nil || a.ref.CreatedAt.After(latest.CreatedAt) ||
			(a.ref.CreatedAt.Equal(latest.CreatedAt) && a.ref.ID > latest.ID) {
			ref := a.ref
			latest = &ref
		}
	}
	return latest, nil
}

// sortedMembers orders memberships by creation time then ID. Caller holds
// the lock.
func (s *MemoryStore) sortedMembers() []*Membership {
	out := append([]*Membership(nil), s.members...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func hasRole(roles []rbac.MembershipRole, role rbac.MembershipRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
