// Package rbac declares the access-control policy of Gazette.
//
// # Overview
//
// The policy is a static table from role to the set of (resource, action)
// permissions it grants. Evaluation is a pure lookup with no I/O; any role or
// permission that is not in the table is denied.
//
// # Roles
//
// Three role vocabularies meet here:
//
//	StoredRole      - persisted on the user: user, editor, admin
//	EffectiveRole   - derived per session: admin, editor, reader, user
//	MembershipRole  - per channel: owner, admin, member
//
// Effective and membership roles map onto policy keys with PolicyRole. The
// reader role exists in the table with no grants.
//
// # Usage
//
//	if rbac.Authorize(rbac.RoleEditor, rbac.ResourceChannel, rbac.ActionManage) {
//		// show the channel management screen
//	}
//
//	result := rbac.DefaultPolicy().Check(role, rbac.Permission{
//		Resource: rbac.ResourceArticle,
//		Action:   rbac.ActionCreate,
//	})
//
// # Related Packages
//
//   - pkg/session: computes the effective role for each request
//   - pkg/middleware: RequirePermission guards routes with this table
package rbac
