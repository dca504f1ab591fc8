package rbac

func perms(resource Resource, actions ...Action) []Permission {
	out := make([]Permission, 0, len(actions))
	for _, a := range actions {
		out = append(out, Permission{Resource: resource, Action: a})
	}
	return out
}

func concat(groups ...[]Permission) []Permission {
	var out []Permission
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var (
	articleAll = perms(ResourceArticle,
		ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionRepost)
	subscriptionAll = perms(ResourceSubscription,
		ActionView, ActionPurchase, ActionCancel, ActionUpgrade, ActionDowngrade)
	subscriptionBasic = perms(ResourceSubscription,
		ActionView, ActionPurchase, ActionUpgrade)
	organizationAdmin = perms(ResourceOrganization, ActionUpdate, ActionDelete)
)

// BuiltInRoles returns all built-in role definitions
func BuiltInRoles() []RoleDefinition {
	editor := concat(
		articleAll,
		perms(ResourceChannel, ActionView, ActionManage),
		subscriptionAll,
		perms(ResourceBusiness, ActionAccess),
	)

	return []RoleDefinition{
		{
			Name:        RoleUser,
			DisplayName: "User",
			Description: "Signed-in reader without a paid tier",
			Permissions: concat(perms(ResourceArticle, ActionRead), subscriptionBasic),
		},
		{
			Name:        RoleEditor,
			DisplayName: "Editor",
			Description: "Business subscriber who writes and manages channel content",
			Permissions: editor,
		},
		{
			Name:        RoleAdmin,
			DisplayName: "Administrator",
			Description: "Full access including user and session administration",
			Permissions: concat(
				editor,
				perms(ResourceUser,
					ActionCreate, ActionList, ActionSetRole, ActionBan,
					ActionImpersonate, ActionDelete, ActionSetPassword),
				perms(ResourceSession, ActionList, ActionRevoke, ActionDelete),
				organizationAdmin,
			),
		},
		{
			Name:        RoleOwner,
			DisplayName: "Channel Owner",
			Description: "Owns a channel",
			Permissions: organizationAdmin,
		},
		{
			Name:        RoleMember,
			DisplayName: "Channel Member",
			Description: "Contributes to a channel",
			Permissions: concat(
				perms(ResourceArticle, ActionRead),
				perms(ResourceChannel, ActionView, ActionCreate, ActionUpdate),
				subscriptionBasic,
			),
		},
		{
			Name:        RoleReader,
			DisplayName: "Reader",
			Description: "Elite subscriber; no editorial grants",
			Permissions: []Permission{},
		},
	}
}
