// Package middleware provides the HTTP middleware that turns a request into
// an authorized Gazette caller.
//
// # Ordering
//
// SessionMiddleware must run before anything that reads the session:
//
//	router.Use(middleware.NewSessionMiddleware(manager, true, metrics).Handler)
//	router.Handle("/api/articles", authz.RequirePermission(rbac.ResourceArticle, rbac.ActionCreate)(h))
//
// OrgContextMiddleware needs the session too, so it can attach the caller's
// membership next to the organization.
//
// # Permissions
//
// Authorizer.RequirePermission answers 401 without a session and 403 when
// the effective role lacks the permission. Every decision is counted in
// gazette_authz_decisions_total.
//
// # Rate limiting
//
// RateLimitMiddleware throttles credential endpoints per client IP, backed
// by RateLimiter (one process) or DistributedRateLimiter (Redis).
package middleware
