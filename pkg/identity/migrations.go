package identity

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/gazette/pkg/observability"
)

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the identity schema in apply order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create subscription catalog and subscriptions",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscription_types (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					price_cents BIGINT NOT NULL DEFAULT 0,
					features TEXT[] NOT NULL DEFAULT '{}'
				);

				CREATE TABLE IF NOT EXISTS subscriptions (
					id TEXT PRIMARY KEY,
					subscription_type_id TEXT NOT NULL REFERENCES subscription_types(id),
					expires_at TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_subscriptions_expires_at ON subscriptions(expires_at);
			`,
		},
		{
			Version:     2,
			Description: "Create users",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					avatar TEXT NOT NULL DEFAULT '',
					role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'editor', 'admin')),
					email_verified BOOLEAN NOT NULL DEFAULT FALSE,
					password_hash TEXT NOT NULL DEFAULT '',
					subscription_id TEXT UNIQUE REFERENCES subscriptions(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     3,
			Description: "Create organizations and memberships",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					slug TEXT NOT NULL UNIQUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS members (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'member')),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, organization_id)
				);

				CREATE INDEX IF NOT EXISTS idx_members_user_id ON members(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create articles and authorship",
			SQL: `
				CREATE TABLE IF NOT EXISTS articles (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL,
					organization_id TEXT REFERENCES organizations(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS article_authors (
					article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					PRIMARY KEY (article_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_article_authors_user_id ON article_authors(user_id);
				CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at);
			`,
		},
	}
}

// RunMigrations applies every migration not yet recorded in
// identity_migrations. Each migration runs in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS identity_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM identity_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range Migrations() {
		if applied[m.Version] {
			continue
		}
		logger.WithField("version", m.Version).Infof("applying migration: %s", m.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO identity_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
