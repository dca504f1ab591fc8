//go:build integration

package identity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

// setupPostgres starts a throwaway Postgres, applies migrations and returns
// a store over it. Tests are skipped when no container runtime is present.
func setupPostgres(t *testing.T) (*PostgresStore, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("gazette_test"),
		postgres.WithUsername("gazette"),
		postgres.WithPassword("gazette_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, RunMigrations(ctx, db, observability.NopLogger()))
	// a second run is a no-op
	require.NoError(t, RunMigrations(ctx, db, observability.NopLogger()))

	return NewPostgresStore(db), db
}

func TestPostgresStore_Integration(t *testing.T) {
	store, db := setupPostgres(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("users", func(t *testing.T) {
		u := &User{Email: "ada@example.com", Name: "Ada"}
		require.NoError(t, store.CreateUser(ctx, u))
		assert.NotEmpty(t, u.ID)
		assert.Equal(t, rbac.StoredRoleUser, u.StoredRole)

		err := store.CreateUser(ctx, &User{Email: "ada@example.com", Name: "Again"})
		assert.ErrorIs(t, err, ErrConflict)

		got, err := store.FindUserByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		require.NoError(t, store.UpdateStoredRole(ctx, u.ID, rbac.StoredRoleAdmin))
		got, err = store.FindUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, rbac.StoredRoleAdmin, got.StoredRole)

		_, err = store.FindUserByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.UpdateStoredRole(ctx, "missing", rbac.StoredRoleUser), ErrNotFound)
	})

	t.Run("subscriptions", func(t *testing.T) {
		elite := &SubscriptionType{Name: TierElite, PriceCents: 999, Features: []string{"Ad-free"}}
		require.NoError(t, store.UpsertSubscriptionType(ctx, elite))
		// upsert by name keeps the id
		again := &SubscriptionType{Name: TierElite, PriceCents: 1299, Features: []string{"Ad-free", "Archive"}}
		require.NoError(t, store.UpsertSubscriptionType(ctx, again))
		assert.Equal(t, elite.ID, again.ID)

		st, err := store.FindSubscriptionType(ctx, TierElite)
		require.NoError(t, err)
		assert.Equal(t, int64(1299), st.PriceCents)
		assert.Equal(t, []string{"Ad-free", "Archive"}, st.Features)

		u := &User{Email: "sub@example.com", Name: "Sub"}
		require.NoError(t, store.CreateUser(ctx, u))

		none, err := store.FindActiveSubscription(ctx, u.ID, now)
		require.NoError(t, err)
		assert.Nil(t, none)

		sub := &Subscription{TypeID: st.ID, ExpiresAt: now.Add(time.Hour)}
		require.NoError(t, store.CreateSubscription(ctx, u.ID, sub))

		active, err := store.FindActiveSubscription(ctx, u.ID, now)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, TierElite, active.Tier)

		counts, err := store.CountActiveSubscriptions(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[TierElite])

		// soft expiry: the row stays but stops counting as active
		sub.ExpiresAt = now.Add(-time.Minute)
		require.NoError(t, store.UpdateSubscription(ctx, sub))
		expired, err := store.FindActiveSubscription(ctx, u.ID, now)
		require.NoError(t, err)
		assert.Nil(t, expired)
		kept, err := store.FindSubscription(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, kept)
		assert.Equal(t, sub.ID, kept.ID)
	})

	t.Run("organizations", func(t *testing.T) {
		owner := &User{Email: "owner@example.com", Name: "Owner"}
		writer := &User{Email: "writer@example.com", Name: "Writer"}
		require.NoError(t, store.CreateUser(ctx, owner))
		require.NoError(t, store.CreateUser(ctx, writer))

		first := &Organization{Name: "Metro Desk", Slug: "metro-desk"}
		require.NoError(t, store.CreateOrganization(ctx, first, &Membership{UserID: owner.ID, Role: rbac.MembershipOwner}))
		second := &Organization{Name: "Sports", Slug: "sports"}
		require.NoError(t, store.CreateOrganization(ctx, second, &Membership{UserID: owner.ID, Role: rbac.MembershipOwner}))

		err := store.CreateOrganization(ctx, &Organization{Name: "Dup", Slug: "metro-desk"},
			&Membership{UserID: owner.ID, Role: rbac.MembershipOwner})
		assert.ErrorIs(t, err, ErrConflict)

		bySlug, err := store.FindOrganizationBySlug(ctx, "metro-desk")
		require.NoError(t, err)
		assert.Equal(t, first.ID, bySlug.ID)

		require.NoError(t, store.AddMembership(ctx, &Membership{
			UserID: writer.ID, OrganizationID: first.ID, Role: rbac.MembershipMember,
		}))
		assert.ErrorIs(t, store.AddMembership(ctx, &Membership{
			UserID: writer.ID, OrganizationID: first.ID, Role: rbac.MembershipMember,
		}), ErrConflict)

		owned, err := store.FindMemberships(ctx, owner.ID, rbac.MembershipOwner, rbac.MembershipAdmin)
		require.NoError(t, err)
		require.Len(t, owned, 2)
		assert.Equal(t, first.ID, owned[0].OrganizationID, "earliest membership first")

		led, err := store.FindMemberships(ctx, writer.ID, rbac.MembershipOwner, rbac.MembershipAdmin)
		require.NoError(t, err)
		assert.Empty(t, led)

		orgs, err := store.ListOrganizationsForUser(ctx, writer.ID)
		require.NoError(t, err)
		require.Len(t, orgs, 1)
		assert.Equal(t, "metro-desk", orgs[0].Slug)

		t.Run("articles", func(t *testing.T) {
			none, err := store.FindMostRecentArticleByAuthor(ctx, writer.ID)
			require.NoError(t, err)
			assert.Nil(t, none)

			_, err = db.ExecContext(ctx, `
				INSERT INTO articles (id, title, organization_id, created_at) VALUES
					('a1', 'Old', $1, NOW() - INTERVAL '2 days'),
					('a2', 'New', $2, NOW() - INTERVAL '1 hour')
			`, first.ID, second.ID)
			require.NoError(t, err)
			_, err = db.ExecContext(ctx,
				`INSERT INTO article_authors (article_id, user_id) VALUES ('a1', $1), ('a2', $1)`, writer.ID)
			require.NoError(t, err)

			latest, err := store.FindMostRecentArticleByAuthor(ctx, writer.ID)
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, "a2", latest.ID)
			require.NotNil(t, latest.OrganizationID)
			assert.Equal(t, second.ID, *latest.OrganizationID)
		})
	})
}
