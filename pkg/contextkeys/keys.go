// Package contextkeys provides centralized context key definitions
//
// All context keys shared between packages are defined here so that middleware
// and handlers agree on them without importing each other.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithSession(ctx, payload)
//	payload, _ := ctx.Value(contextkeys.SessionKey).(*session.Payload)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *session.Payload
	// Set by: middleware.SessionMiddleware (pkg/middleware/session.go)
	// Required by: every authenticated endpoint, middleware.RequirePermission
	SessionKey Key = "session"

	// SessionTokenKey contains the raw bearer token string of the request
	// Set by: middleware.SessionMiddleware
	// Used by: logout and active-organization handlers
	SessionTokenKey Key = "session_token"

	// SessionUnavailableKey is true when a token was sent but the session
	// could not be loaded because a backing store failed
	// Set by: middleware.SessionMiddleware in optional mode
	// Used by: middleware.RequireSession, middleware.RequirePermission
	SessionUnavailableKey Key = "session_unavailable"

	// OrgKey contains *identity.Organization
	// Set by: middleware.OrgContextMiddleware (pkg/middleware/org.go)
	// Required by: organization-scoped endpoints
	OrgKey Key = "organization"

	// MembershipKey contains *identity.Membership of the caller in OrgKey
	// Set by: middleware.OrgContextMiddleware
	MembershipKey Key = "membership"
)

// WithSession adds the session payload to the context
func WithSession(ctx context.Context, payload interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, payload)
}

// WithSessionToken adds the raw session token to the context
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, SessionTokenKey, token)
}

// GetSessionToken retrieves the raw session token from context
func GetSessionToken(ctx context.Context) string {
	token, _ := ctx.Value(SessionTokenKey).(string)
	return token
}

// WithSessionUnavailable marks the request as carrying a session that could
// not be loaded
func WithSessionUnavailable(ctx context.Context) context.Context {
	return context.WithValue(ctx, SessionUnavailableKey, true)
}

// SessionUnavailable reports whether WithSessionUnavailable marked ctx
func SessionUnavailable(ctx context.Context) bool {
	v, _ := ctx.Value(SessionUnavailableKey).(bool)
	return v
}

// WithOrg adds organization to the context
func WithOrg(ctx context.Context, org interface{}) context.Context {
	return context.WithValue(ctx, OrgKey, org)
}

// WithMembership adds the caller's membership to the context
func WithMembership(ctx context.Context, membership interface{}) context.Context {
	return context.WithValue(ctx, MembershipKey, membership)
}
