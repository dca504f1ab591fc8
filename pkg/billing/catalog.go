package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/observability"
)

const catalogListKey = "*"

// CatalogCache fronts the subscription catalog with an expiring LRU.
// Concurrent misses for the same key share one store call.
type CatalogCache struct {
	store   identity.SubscriptionStore
	cache   *lru.LRU[string, []identity.SubscriptionType]
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewCatalogCache creates a catalog cache with the given entry TTL
func NewCatalogCache(store identity.SubscriptionStore, ttl time.Duration, metrics *observability.Metrics) *CatalogCache {
	return &CatalogCache{
		store:   store,
		cache:   lru.NewLRU[string, []identity.SubscriptionType](16, nil, ttl),
		metrics: metrics,
	}
}

func (c *CatalogCache) load(ctx context.Context, key string, fetch func() ([]identity.SubscriptionType, error)) ([]identity.SubscriptionType, error) {
	if v, ok := c.cache.Get(key); ok {
		c.metrics.RecordCatalogLookup(true)
		return v, nil
	}
	c.metrics.RecordCatalogLookup(false)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		types, err := fetch()
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, types)
		return types, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]identity.SubscriptionType), nil
}

// Lookup returns the catalog entry for tier
func (c *CatalogCache) Lookup(ctx context.Context, tier identity.Tier) (*identity.SubscriptionType, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	types, err := c.load(ctx, string(tier), func() ([]identity.SubscriptionType, error) {
		st, err := c.store.FindSubscriptionType(ctx, tier)
		if err != nil {
			return nil, err
		}
		return []identity.SubscriptionType{*st}, nil
	})
	if errors.Is(err, identity.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up subscription type: %w", err)
	}
	st := types[0]
	return &st, nil
}

// List returns the catalog ordered by price
func (c *CatalogCache) List(ctx context.Context) ([]identity.SubscriptionType, error) {
	types, err := c.load(ctx, catalogListKey, func() ([]identity.SubscriptionType, error) {
		return c.store.ListSubscriptionTypes(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription types: %w", err)
	}
	out := make([]identity.SubscriptionType, len(types))
	copy(out, types)
	return out, nil
}

// Seed upserts every entry and drops cached state
func (c *CatalogCache) Seed(ctx context.Context, types []identity.SubscriptionType) error {
	for i := range types {
		st := types[i]
		if !st.Name.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownTier, st.Name)
		}
		if err := c.store.UpsertSubscriptionType(ctx, &st); err != nil {
			return fmt.Errorf("failed to seed %s: %w", st.Name, err)
		}
	}
	c.cache.Purge()
	return nil
}
