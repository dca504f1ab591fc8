package rbac

import (
	"fmt"
	"strings"
	"time"
)

// Resource represents a resource type in the system
type Resource string

const (
	ResourceArticle      Resource = "article"
	ResourceSubscription Resource = "subscription"
	ResourceChannel      Resource = "channel"
	ResourceBusiness     Resource = "business"
	ResourceUser         Resource = "user"
	ResourceSession      Resource = "session"
	ResourceOrganization Resource = "organization"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate      Action = "create"
	ActionRead        Action = "read"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionRepost      Action = "repost"
	ActionView        Action = "view"
	ActionPurchase    Action = "purchase"
	ActionCancel      Action = "cancel"
	ActionUpgrade     Action = "upgrade"
	ActionDowngrade   Action = "downgrade"
	ActionManage      Action = "manage"
	ActionAccess      Action = "access"
	ActionList        Action = "list"
	ActionSetRole     Action = "set-role"
	ActionBan         Action = "ban"
	ActionImpersonate Action = "impersonate"
	ActionSetPassword Action = "set-password"
	ActionRevoke      Action = "revoke"
)

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// ParsePermission parses "resource:action"
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("invalid permission %q: expected resource:action", s)
	}
	return Permission{Resource: Resource(resource), Action: Action(action)}, nil
}

// Role is a key of the policy table.
type Role string

// Policy roles. RoleReader is produced by the role resolver for Elite
// subscribers and intentionally has no grants.
const (
	RoleUser   Role = "user"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
	RoleReader Role = "reader"
)

// StoredRole is the base role persisted on the user record.
type StoredRole string

const (
	StoredRoleUser   StoredRole = "user"
	StoredRoleEditor StoredRole = "editor"
	StoredRoleAdmin  StoredRole = "admin"
)

// Valid reports whether r is a known stored role
func (r StoredRole) Valid() bool {
	switch r {
	case StoredRoleUser, StoredRoleEditor, StoredRoleAdmin:
		return true
	}
	return false
}

// ParseStoredRole validates a stored role name
func ParseStoredRole(s string) (StoredRole, error) {
	r := StoredRole(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown stored role %q", s)
	}
	return r, nil
}

// EffectiveRole is the role used for permission checks during a session.
type EffectiveRole string

const (
	EffectiveRoleAdmin  EffectiveRole = "admin"
	EffectiveRoleEditor EffectiveRole = "editor"
	EffectiveRoleReader EffectiveRole = "reader"
	EffectiveRoleUser   EffectiveRole = "user"
)

// Valid reports whether r is a known effective role
func (r EffectiveRole) Valid() bool {
	switch r {
	case EffectiveRoleAdmin, EffectiveRoleEditor, EffectiveRoleReader, EffectiveRoleUser:
		return true
	}
	return false
}

// PolicyRole maps the effective role onto its policy table key
func (r EffectiveRole) PolicyRole() Role {
	switch r {
	case EffectiveRoleAdmin:
		return RoleAdmin
	case EffectiveRoleEditor:
		return RoleEditor
	case EffectiveRoleReader:
		return RoleReader
	case EffectiveRoleUser:
		return RoleUser
	}
	return ""
}

// MembershipRole is a user's role inside one organization.
type MembershipRole string

const (
	MembershipOwner  MembershipRole = "owner"
	MembershipAdmin  MembershipRole = "admin"
	MembershipMember MembershipRole = "member"
)

// Valid reports whether r is a known membership role
func (r MembershipRole) Valid() bool {
	switch r {
	case MembershipOwner, MembershipAdmin, MembershipMember:
		return true
	}
	return false
}

// PolicyRole maps the membership role onto its policy table key
func (r MembershipRole) PolicyRole() Role {
	switch r {
	case MembershipOwner:
		return RoleOwner
	case MembershipAdmin:
		return RoleAdmin
	case MembershipMember:
		return RoleMember
	}
	return ""
}

// RoleDefinition is a named collection of permissions
type RoleDefinition struct {
	Name        Role         `json:"name"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

// PermissionCheckResult represents the result of a permission check
type PermissionCheckResult struct {
	Allowed    bool       `json:"allowed"`
	Role       Role       `json:"role"`
	Permission Permission `json:"permission"`
	Reason     string     `json:"reason,omitempty"`
	CheckedAt  time.Time  `json:"checked_at"`
}
