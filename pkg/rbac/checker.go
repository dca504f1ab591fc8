package rbac

import (
	"fmt"
	"sort"
	"time"
)

// Checker evaluates permissions for a role
type Checker interface {
	// Authorize reports whether role may perform action on resource
	Authorize(role Role, resource Resource, action Action) bool

	// Check is Authorize with an explanation attached
	Check(role Role, permission Permission) PermissionCheckResult
}

// Policy is an immutable role -> permission lookup table.
type Policy struct {
	defs   []RoleDefinition
	grants map[Role]map[Permission]struct{}
}

// NewPolicy builds a policy from role definitions. Later definitions with
// the same name replace earlier ones.
func NewPolicy(defs []RoleDefinition) *Policy {
	p := &Policy{
		grants: make(map[Role]map[Permission]struct{}, len(defs)),
	}
	for _, def := range defs {
		set := make(map[Permission]struct{}, len(def.Permissions))
		for _, perm := range def.Permissions {
			set[perm] = struct{}{}
		}
		if _, exists := p.grants[def.Name]; !exists {
			p.defs = append(p.defs, def)
		} else {
			for i := range p.defs {
				if p.defs[i].Name == def.Name {
					p.defs[i] = def
				}
			}
		}
		p.grants[def.Name] = set
	}
	return p
}

var defaultPolicy = NewPolicy(BuiltInRoles())

// DefaultPolicy returns the built-in policy table
func DefaultPolicy() *Policy {
	return defaultPolicy
}

// Authorize checks the built-in policy table
func Authorize(role Role, resource Resource, action Action) bool {
	return defaultPolicy.Authorize(role, resource, action)
}

// Authorize reports whether role may perform action on resource. Unknown
// roles and ungranted pairs are denied.
func (p *Policy) Authorize(role Role, resource Resource, action Action) bool {
	set, ok := p.grants[role]
	if !ok {
		return false
	}
	_, ok = set[Permission{Resource: resource, Action: action}]
	return ok
}

// Check evaluates a permission and records why
func (p *Policy) Check(role Role, permission Permission) PermissionCheckResult {
	result := PermissionCheckResult{
		Role:       role,
		Permission: permission,
		CheckedAt:  time.Now(),
	}

	if _, known := p.grants[role]; !known {
		result.Reason = fmt.Sprintf("unknown role %q", role)
		return result
	}

	result.Allowed = p.Authorize(role, permission.Resource, permission.Action)
	if result.Allowed {
		result.Reason = fmt.Sprintf("granted by role %s", role)
	} else {
		result.Reason = fmt.Sprintf("role %s does not grant %s", role, permission)
	}
	return result
}

// Permissions returns the sorted permissions granted to role
func (p *Policy) Permissions(role Role) []Permission {
	set := p.grants[role]
	out := make([]Permission, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Roles returns the role definitions in declaration order
func (p *Policy) Roles() []RoleDefinition {
	out := make([]RoleDefinition, len(p.defs))
	copy(out, p.defs)
	return out
}
