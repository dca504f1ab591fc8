package session

import (
	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

// ResolveRole derives the effective role from the stored role and the
// active subscription tier (nil when unsubscribed or expired).
//
// Precedence: stored admin, then Business (editor), then Elite (reader),
// otherwise user. Unknown stored roles behave like user.
func ResolveRole(stored rbac.StoredRole, tier *identity.Tier) rbac.EffectiveRole {
	if stored == rbac.StoredRoleAdmin {
		return rbac.EffectiveRoleAdmin
	}
	if tier == nil {
		return rbac.EffectiveRoleUser
	}
	switch *tier {
	case identity.TierBusiness:
		return rbac.EffectiveRoleEditor
	case identity.TierElite:
		return rbac.EffectiveRoleReader
	default:
		return rbac.EffectiveRoleUser
	}
}
