// Package session derives per-request identity from opaque session tokens.
//
// Two rules shape it. The effective role is recomputed from the stored role
// and the active subscription tier on every read (ResolveRole, Augmentor),
// so an expired subscription takes effect at once. The active organization
// is picked once when the session is created (Selector) and only changes
// through Manager.SetActiveOrganization.
//
//	created, err := manager.Create(ctx, user, session.Metadata{IPAddress: ip})
//	...
//	payload, err := manager.Get(ctx, created.Token)
//	if rbac.Authorize(payload.User.Role.PolicyRole(), rbac.ResourceArticle, rbac.ActionCreate) {
//		...
//	}
//
// Sessions live in a Store: RedisStore in production, MemoryStore for
// single-process use and tests.
package session
