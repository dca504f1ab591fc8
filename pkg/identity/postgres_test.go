package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

var userCols = []string{"id", "email", "name", "avatar", "role", "email_verified",
	"password_hash", "subscription_id", "created_at", "updated_at"}

func TestPostgresStore_CreateUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "ada@example.com", "Ada", "", "user", false, "hash", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	user := &User{Email: "ada@example.com", Name: "Ada", PasswordHash: "hash"}
	require.NoError(t, store.CreateUser(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, rbac.StoredRoleUser, user.StoredRole)
	assert.Equal(t, now, user.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateUser_DuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := store.CreateUser(context.Background(), &User{Email: "ada@example.com", Name: "Ada"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresStore_FindUserByID(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(`FROM users WHERE id = \$1`).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows(userCols).
				AddRow("u1", "ada@example.com", "Ada", "", "editor", true, "", "s1", now, now))

		user, err := store.FindUserByID(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, rbac.StoredRoleEditor, user.StoredRole)
		require.NotNil(t, user.SubscriptionID)
		assert.Equal(t, "s1", *user.SubscriptionID)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`FROM users WHERE id = \$1`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := store.FindUserByID(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStoredRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE users SET role = \$1`).
		WithArgs("editor", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpdateStoredRole(context.Background(), "u1", rbac.StoredRoleEditor))

	mock.ExpectExec(`UPDATE users SET role = \$1`).
		WithArgs("admin", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.UpdateStoredRole(context.Background(), "ghost", rbac.StoredRoleAdmin), ErrNotFound)

	assert.Error(t, store.UpdateStoredRole(context.Background(), "u1", "owner"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindActiveSubscription(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"id", "subscription_type_id", "name", "expires_at", "created_at", "updated_at"}

	t.Run("active", func(t *testing.T) {
		mock.ExpectQuery(`JOIN subscription_types t .* AND s.expires_at > \$2`).
			WithArgs("u1", now).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow("s1", "t-business", "Business", now.Add(time.Hour), now, now))

		sub, err := store.FindActiveSubscription(context.Background(), "u1", now)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, TierBusiness, sub.Tier)
		assert.True(t, sub.IsActive(now))
	})

	t.Run("none or expired", func(t *testing.T) {
		mock.ExpectQuery(`AND s.expires_at > \$2`).
			WithArgs("u2", now).
			WillReturnError(sql.ErrNoRows)

		sub, err := store.FindActiveSubscription(context.Background(), "u2", now)
		require.NoError(t, err)
		assert.Nil(t, sub)
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery(`AND s.expires_at > \$2`).
			WillReturnError(errors.New("connection reset"))

		_, err := store.FindActiveSubscription(context.Background(), "u3", now)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get active subscription")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSubscription(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	expires := now.AddDate(0, 1, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO subscriptions`).
		WithArgs(sqlmock.AnyArg(), "t-elite", expires).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(`UPDATE users SET subscription_id = \$1`).
		WithArgs(sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub := &Subscription{TypeID: "t-elite", ExpiresAt: expires}
	require.NoError(t, store.CreateSubscription(context.Background(), "u1", sub))
	assert.NotEmpty(t, sub.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSubscription_UnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO subscriptions`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(`UPDATE users SET subscription_id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.CreateSubscription(context.Background(), "ghost", &Subscription{TypeID: "t", ExpiresAt: now})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SubscriptionTypes(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO subscription_types .* ON CONFLICT \(name\)`).
		WithArgs(sqlmock.AnyArg(), "Elite", int64(999), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t-elite"))

	st := &SubscriptionType{Name: TierElite, PriceCents: 999, Features: []string{"ad-free"}}
	require.NoError(t, store.UpsertSubscriptionType(context.Background(), st))
	assert.Equal(t, "t-elite", st.ID)

	mock.ExpectQuery(`FROM subscription_types ORDER BY price_cents`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price_cents", "features"}).
			AddRow("t-free", "Free", 0, []byte("{}")).
			AddRow("t-elite", "Elite", 999, []byte("{ad-free,archive}")))

	types, err := store.ListSubscriptionTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, TierFree, types[0].Name)
	assert.Equal(t, []string{"ad-free", "archive"}, types[1].Features)

	mock.ExpectQuery(`FROM subscription_types WHERE name = \$1`).
		WithArgs("Business").
		WillReturnError(sql.ErrNoRows)
	_, err = store.FindSubscriptionType(context.Background(), TierBusiness)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountActiveSubscriptions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`GROUP BY t.name`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"name", "count"}).
			AddRow("Elite", 3).
			AddRow("Business", 1))

	counts, err := store.CountActiveSubscriptions(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, map[Tier]int{TierElite: 3, TierBusiness: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateOrganization(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO organizations`).
		WithArgs(sqlmock.AnyArg(), "Daily Planet", "daily-planet").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery(`INSERT INTO members`).
		WithArgs(sqlmock.AnyArg(), "u1", sqlmock.AnyArg(), "owner").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	org := &Organization{Name: "Daily Planet", Slug: "daily-planet"}
	owner := &Membership{UserID: "u1", Role: rbac.MembershipOwner}
	require.NoError(t, store.CreateOrganization(context.Background(), org, owner))
	assert.Equal(t, org.ID, owner.OrganizationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateOrganization_SlugTaken(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO organizations`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.CreateOrganization(context.Background(),
		&Organization{Name: "Daily Planet", Slug: "daily-planet"},
		&Membership{UserID: "u1", Role: rbac.MembershipOwner})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindMemberships(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"id", "user_id", "organization_id", "role", "created_at"}

	t.Run("filtered by role", func(t *testing.T) {
		mock.ExpectQuery(`FROM members WHERE user_id = \$1 AND role = ANY\(\$2\) ORDER BY created_at, id`).
			WithArgs("u1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow("m1", "u1", "o1", "admin", now).
				AddRow("m2", "u1", "o2", "owner", now.Add(time.Minute)))

		ms, err := store.FindMemberships(context.Background(), "u1", rbac.MembershipOwner, rbac.MembershipAdmin)
		require.NoError(t, err)
		require.Len(t, ms, 2)
		assert.Equal(t, "o1", ms[0].OrganizationID)
		assert.Equal(t, rbac.MembershipAdmin, ms[0].Role)
	})

	t.Run("all roles", func(t *testing.T) {
		mock.ExpectQuery(`FROM members WHERE user_id = \$1 ORDER BY created_at, id`).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows(cols))

		ms, err := store.FindMemberships(context.Background(), "u1")
		require.NoError(t, err)
		assert.Empty(t, ms)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMembers(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"id", "user_id", "organization_id", "role", "created_at"}

	mock.ExpectQuery(`FROM members WHERE organization_id = \$1 ORDER BY created_at, id`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m1", "u1", "o1", "owner", now).
			AddRow("m2", "u2", "o1", "member", now.Add(time.Minute)))

	ms, err := store.ListMembers(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, rbac.MembershipOwner, ms[0].Role)
	assert.Equal(t, "u2", ms[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteOrganization(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM organizations WHERE id = \$1`).
		WithArgs("o1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.DeleteOrganization(context.Background(), "o1"))

	mock.ExpectExec(`DELETE FROM organizations WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.DeleteOrganization(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddMembership_Duplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO members`).
		WithArgs(sqlmock.AnyArg(), "u2", "o1", "member").
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.AddMembership(context.Background(),
		&Membership{UserID: "u2", OrganizationID: "o1", Role: rbac.MembershipMember})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindMostRecentArticleByAuthor(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"id", "organization_id", "created_at"}

	mock.ExpectQuery(`JOIN article_authors aa .* ORDER BY a.created_at DESC, a.id DESC LIMIT 1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a1", "o9", now))
	ref, err := store.FindMostRecentArticleByAuthor(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, ref.OrganizationID)
	assert.Equal(t, "o9", *ref.OrganizationID)

	mock.ExpectQuery(`JOIN article_authors`).
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a2", nil, now))
	ref, err = store.FindMostRecentArticleByAuthor(context.Background(), "u2")
	require.NoError(t, err)
	assert.Nil(t, ref.OrganizationID)

	mock.ExpectQuery(`JOIN article_authors`).
		WithArgs("u3").
		WillReturnError(sql.ErrNoRows)
	ref, err = store.FindMostRecentArticleByAuthor(context.Background(), "u3")
	require.NoError(t, err)
	assert.Nil(t, ref)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS identity_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM identity_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(2))

	for _, m := range Migrations()[2:] {
		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO identity_migrations`).
			WithArgs(m.Version, m.Description).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	logger := observability.NopLogger()
	require.NoError(t, RunMigrations(context.Background(), db, logger))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_Ordered(t *testing.T) {
	migrations := Migrations()
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
	}
}
