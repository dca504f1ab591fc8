// Package identity is the persistence layer for users, subscriptions,
// organizations, memberships and article authorship.
//
// Two Store implementations are provided. PostgresStore is backed by
// database/sql with the lib/pq driver and owns the schema through
// RunMigrations. MemoryStore keeps everything in process and backs local
// development and tests.
//
// Lookups that "may find nothing" (the active subscription, the most recent
// authored article) return a nil value with a nil error; single-row lookups
// by key return ErrNotFound.
package identity
