// Package api provides the Gazette HTTP API.
//
// # Routes
//
// Authentication and the caller's session:
//
//	POST   /api/users                           sign up
//	POST   /api/sessions                        log in (rate limited per IP)
//	GET    /api/session                         augmented session payload
//	DELETE /api/session                         log out
//	PUT    /api/session/active-organization     switch or reselect the active organization
//
// Permissions:
//
//	GET    /api/permissions?resource=&action=   check a grant for the caller
//	GET    /api/roles                           the policy table
//
// Subscriptions:
//
//	GET    /api/subscription-types
//	POST   /api/subscriptions                   purchase, renew, upgrade or downgrade
//	DELETE /api/subscriptions                   cancel
//
// Organizations:
//
//	POST   /api/organizations
//	GET    /api/organizations
//	GET    /api/organizations/by-slug/{org_slug}
//	DELETE /api/organizations/{org_id}
//	GET    /api/organizations/{org_id}/members
//	POST   /api/organizations/{org_id}/members
//
// Administration:
//
//	PUT    /api/admin/users/{id}/role           user:set-role
//	GET    /api/admin/users/{id}/sessions       session:list
//	DELETE /api/admin/users/{id}/sessions       session:revoke
//
// With the preview notifier configured, GET /dev/mail/{id} renders sent
// receipts.
//
// Sessions are read from an "Authorization: Bearer gz_..." header or the
// gazette_session cookie set at login.
package api
