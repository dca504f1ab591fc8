package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

func TestResolveRole(t *testing.T) {
	stored := []rbac.StoredRole{rbac.StoredRoleUser, rbac.StoredRoleEditor, rbac.StoredRoleAdmin, rbac.StoredRole("ghost")}
	tiers := []*identity.Tier{nil, tierPtr(identity.TierFree), tierPtr(identity.TierElite), tierPtr(identity.TierBusiness), tierPtr("Platinum")}

	for _, s := range stored {
		for _, tier := range tiers {
			name := string(s) + "/"
			if tier == nil {
				name += "none"
			} else {
				name += string(*tier)
			}
			t.Run(name, func(t *testing.T) {
				got := ResolveRole(s, tier)
				assert.True(t, got.Valid())

				var want rbac.EffectiveRole
				switch {
				case s == rbac.StoredRoleAdmin:
					want = rbac.EffectiveRoleAdmin
				case tier != nil && *tier == identity.TierBusiness:
					want = rbac.EffectiveRoleEditor
				case tier != nil && *tier == identity.TierElite:
					want = rbac.EffectiveRoleReader
				default:
					want = rbac.EffectiveRoleUser
				}
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestResolveRole_EditorNeedsBusiness(t *testing.T) {
	// A stored editor without an active Business tier is not an editor
	assert.Equal(t, rbac.EffectiveRoleUser, ResolveRole(rbac.StoredRoleEditor, nil))
	assert.Equal(t, rbac.EffectiveRoleReader, ResolveRole(rbac.StoredRoleEditor, tierPtr(identity.TierElite)))
	assert.Equal(t, rbac.EffectiveRoleAdmin, ResolveRole(rbac.StoredRoleAdmin, nil))
}
