// Package billing sells Gazette subscription tiers.
//
// The catalog holds one entry per tier (Free, Elite, Business) and is read
// through CatalogCache. Service.Purchase covers first purchase, renewal,
// upgrade and downgrade; each one extends the expiry by a month.
//
//	result, err := svc.Purchase(ctx, userID, identity.TierBusiness)
//	if err != nil {
//		return err
//	}
//	log.Println(result.Event, result.Subscription.ExpiresAt)
//
// Buying Business promotes a plain user to editor. Cancel expires the
// subscription in place.
package billing
