// Package orgs manages Gazette organizations, shown to readers as channels.
//
// Only users with an active Business subscription can create one; the
// creator becomes its owner. Owners and admins add members.
//
//	org, err := svc.Create(ctx, userID, orgs.CreateOrgRequest{Name: "Daily Planet"})
//	if errors.Is(err, orgs.ErrTierRequired) {
//		// upgrade first
//	}
package orgs
