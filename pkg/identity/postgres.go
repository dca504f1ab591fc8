package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/gazette/pkg/rbac"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func translate(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("failed to %s: %w", op, ErrConflict)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// CreateUser inserts a user, generating an ID when none is set
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.StoredRole == "" {
		user.StoredRole = rbac.StoredRoleUser
	}

	query := `
		INSERT INTO users (id, email, name, avatar, role, email_verified, password_hash, subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Name, user.Avatar, string(user.StoredRole),
		user.EmailVerified, user.PasswordHash, nullString(user.SubscriptionID),
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return translate(err, "create user")
	}
	return nil
}

const userColumns = `id, email, name, avatar, role, email_verified, password_hash, subscription_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	var role string
	var subID sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Avatar, &role, &u.EmailVerified,
		&u.PasswordHash, &subID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.StoredRole = rbac.StoredRole(role)
	u.SubscriptionID = stringPtr(subID)
	return u, nil
}

// FindUserByID retrieves a user by ID
func (s *PostgresStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err, "get user")
	}
	return u, nil
}

// FindUserByEmail retrieves a user by email
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err, "get user by email")
	}
	return u, nil
}

// UpdateStoredRole changes a user's persisted role
func (s *PostgresStore) UpdateStoredRole(ctx context.Context, userID string, role rbac.StoredRole) error {
	if !role.Valid() {
		return fmt.Errorf("invalid stored role %q", role)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`, string(role), userID)
	if err != nil {
		return translate(err, "update user role")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const subscriptionSelect = `
	SELECT s.id, s.subscription_type_id, t.name, s.expires_at, s.created_at, s.updated_at
	FROM users u
	JOIN subscriptions s ON s.id = u.subscription_id
	JOIN subscription_types t ON t.id = s.subscription_type_id
	WHERE u.id = $1`

func scanSubscription(row interface{ Scan(...any) error }) (*Subscription, error) {
	sub := &Subscription{}
	var tier string
	if err := row.Scan(&sub.ID, &sub.TypeID, &tier, &sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Tier = Tier(tier)
	return sub, nil
}

// FindActiveSubscription returns the user's subscription if it expires after now
func (s *PostgresStore) FindActiveSubscription(ctx context.Context, userID string, now time.Time) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, subscriptionSelect+` AND s.expires_at > $2`, userID, now)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "get active subscription")
	}
	return sub, nil
}

// FindSubscription returns the user's subscription whether or not it expired
func (s *PostgresStore) FindSubscription(ctx context.Context, userID string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, subscriptionSelect, userID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "get subscription")
	}
	return sub, nil
}

// CreateSubscription inserts sub and points the user at it in one transaction
func (s *PostgresStore) CreateSubscription(ctx context.Context, userID string, sub *Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO subscriptions (id, subscription_type_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, sub.ID, sub.TypeID, sub.ExpiresAt).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return translate(err, "create subscription")
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET subscription_id = $1, updated_at = NOW() WHERE id = $2`, sub.ID, userID)
	if err != nil {
		return translate(err, "attach subscription")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subscription: %w", err)
	}
	return nil
}

// UpdateSubscription changes the type and expiry of an existing subscription
func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE subscriptions
		SET subscription_type_id = $1, expires_at = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at
	`, sub.TypeID, sub.ExpiresAt, sub.ID).Scan(&sub.UpdatedAt)
	if err != nil {
		return translate(err, "update subscription")
	}
	return nil
}

// UpsertSubscriptionType inserts or replaces a catalog entry keyed by name
func (s *PostgresStore) UpsertSubscriptionType(ctx context.Context, st *SubscriptionType) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subscription_types (id, name, price_cents, features)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET price_cents = EXCLUDED.price_cents, features = EXCLUDED.features
		RETURNING id
	`, st.ID, string(st.Name), st.PriceCents, pq.Array(st.Features)).Scan(&st.ID)
	if err != nil {
		return translate(err, "upsert subscription type")
	}
	return nil
}

func scanSubscriptionType(row interface{ Scan(...any) error }) (*SubscriptionType, error) {
	st := &SubscriptionType{}
	var name string
	if err := row.Scan(&st.ID, &name, &st.PriceCents, pq.Array(&st.Features)); err != nil {
		return nil, err
	}
	st.Name = Tier(name)
	return st, nil
}

// FindSubscriptionType looks up a catalog entry by tier name
func (s *PostgresStore) FindSubscriptionType(ctx context.Context, tier Tier) (*SubscriptionType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, price_cents, features FROM subscription_types WHERE name = $1`, string(tier))
	st, err := scanSubscriptionType(row)
	if err != nil {
		return nil, translate(err, "get subscription type")
	}
	return st, nil
}

// ListSubscriptionTypes returns the catalog ordered by price
func (s *PostgresStore) ListSubscriptionTypes(ctx context.Context) ([]SubscriptionType, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, price_cents, features FROM subscription_types ORDER BY price_cents, name`)
	if err != nil {
		return nil, translate(err, "list subscription types")
	}
	defer rows.Close()

	var types []SubscriptionType
	for rows.Next() {
		st, err := scanSubscriptionType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription type: %w", err)
		}
		types = append(types, *st)
	}
	return types, rows.Err()
}

// CountActiveSubscriptions counts subscriptions expiring after now, per tier
func (s *PostgresStore) CountActiveSubscriptions(ctx context.Context, now time.Time) (map[Tier]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(*)
		FROM subscriptions s
		JOIN subscription_types t ON t.id = s.subscription_type_id
		WHERE s.expires_at > $1
		GROUP BY t.name
	`, now)
	if err != nil {
		return nil, translate(err, "count active subscriptions")
	}
	defer rows.Close()

	counts := make(map[Tier]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan subscription count: %w", err)
		}
		counts[Tier(name)] = n
	}
	return counts, rows.Err()
}

// CreateOrganization inserts org and its first membership in one transaction
func (s *PostgresStore) CreateOrganization(ctx context.Context, org *Organization, owner *Membership) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if owner.ID == "" {
		owner.ID = uuid.NewString()
	}
	owner.OrganizationID = org.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (id, name, slug)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, org.ID, org.Name, org.Slug).Scan(&org.CreatedAt)
	if err != nil {
		return translate(err, "create organization")
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO members (id, user_id, organization_id, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, owner.ID, owner.UserID, owner.OrganizationID, string(owner.Role)).Scan(&owner.CreatedAt)
	if err != nil {
		return translate(err, "create owner membership")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit organization: %w", err)
	}
	return nil
}

// FindOrganizationByID retrieves an organization by ID
func (s *PostgresStore) FindOrganizationByID(ctx context.Context, id string) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM organizations WHERE id = $1`, id,
	).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt)
	if err != nil {
		return nil, translate(err, "get organization")
	}
	return org, nil
}

// FindOrganizationBySlug retrieves an organization by slug
func (s *PostgresStore) FindOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM organizations WHERE slug = $1`, slug,
	).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt)
	if err != nil {
		return nil, translate(err, "get organization by slug")
	}
	return org, nil
}

// ListOrganizationsForUser lists organizations the user belongs to
func (s *PostgresStore) ListOrganizationsForUser(ctx context.Context, userID string) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.slug, o.created_at
		FROM organizations o
		JOIN members m ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY m.created_at, m.id
	`, userID)
	if err != nil {
		return nil, translate(err, "list organizations")
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// DeleteOrganization removes an organization. Memberships cascade and
// articles are detached by the foreign keys.
func (s *PostgresStore) DeleteOrganization(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete organization")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMembership inserts a membership. A duplicate user/organization pair
// returns ErrConflict.
func (s *PostgresStore) AddMembership(ctx context.Context, m *Membership) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO members (id, user_id, organization_id, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, m.ID, m.UserID, m.OrganizationID, string(m.Role)).Scan(&m.CreatedAt)
	if err != nil {
		return translate(err, "add member")
	}
	return nil
}

// FindMembership retrieves the user's membership in an organization
func (s *PostgresStore) FindMembership(ctx context.Context, organizationID, userID string) (*Membership, error) {
	m := &Membership{}
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, organization_id, role, created_at
		FROM members
		WHERE organization_id = $1 AND user_id = $2
	`, organizationID, userID).Scan(&m.ID, &m.UserID, &m.OrganizationID, &role, &m.CreatedAt)
	if err != nil {
		return nil, translate(err, "get membership")
	}
	m.Role = rbac.MembershipRole(role)
	return m, nil
}

// ListMembers lists the organization's memberships ordered by creation time
func (s *PostgresStore) ListMembers(ctx context.Context, organizationID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, organization_id, role, created_at
		FROM members
		WHERE organization_id = $1
		ORDER BY created_at, id
	`, organizationID)
	if err != nil {
		return nil, translate(err, "list members")
	}
	defer rows.Close()
	return scanMemberships(rows)
}

// FindMemberships lists the user's memberships ordered by creation time
func (s *PostgresStore) FindMemberships(ctx context.Context, userID string, roles ...rbac.MembershipRole) ([]Membership, error) {
	query := `
		SELECT id, user_id, organization_id, role, created_at
		FROM members
		WHERE user_id = $1`
	args := []any{userID}
	if len(roles) > 0 {
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		query += ` AND role = ANY($2)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list memberships")
	}
	defer rows.Close()
	return scanMemberships(rows)
}

func scanMemberships(rows *sql.Rows) ([]Membership, error) {
	var memberships []Membership
	for rows.Next() {
		var m Membership
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &m.OrganizationID, &role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.Role = rbac.MembershipRole(role)
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// FindMostRecentArticleByAuthor returns the newest article the user co-authored
func (s *PostgresStore) FindMostRecentArticleByAuthor(ctx context.Context, userID string) (*ArticleRef, error) {
	ref := &ArticleRef{}
	var orgID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.organization_id, a.created_at
		FROM articles a
		JOIN article_authors aa ON aa.article_id = a.id
		WHERE aa.user_id = $1
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT 1
	`, userID).Scan(&ref.ID, &orgID, &ref.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "get most recent article")
	}
	ref.OrganizationID = stringPtr(orgID)
	return ref, nil
}
