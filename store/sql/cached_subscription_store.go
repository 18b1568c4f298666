package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-ingest/core"
)

const subscriptionCacheKeyPrefix = "go-ingest::subscription::v1"

// CachedSubscriptionStore serves subscription reads through the cache
// service. Every write invalidates the entry, so dispatch always observes
// the version it is about to contend on.
type CachedSubscriptionStore struct {
	base  core.SubscriptionStore
	cache repositorycache.CacheService
}

func NewCachedSubscriptionStore(
	base core.SubscriptionStore,
	cacheService repositorycache.CacheService,
) (*CachedSubscriptionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscription store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscription cache service is required")
	}
	return &CachedSubscriptionStore{base: base, cache: cacheService}, nil
}

// SubscriptionCacheKey returns the deterministic cache key for subscription
// reads: go-ingest::subscription::v1::<id> with the id URL-path escaped.
func SubscriptionCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: subscription id is required")
	}
	return subscriptionCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedSubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	cacheKey, err := SubscriptionCacheKey(id)
	if err != nil {
		return core.Subscription{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Subscription, error) {
		return s.base.Get(ctx, strings.TrimSpace(id))
	})
}

func (s *CachedSubscriptionStore) Create(ctx context.Context, in core.CreateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	created, err := s.base.Create(ctx, in)
	if err != nil {
		return core.Subscription{}, err
	}
	if err := s.invalidate(ctx, created.ID); err != nil {
		return core.Subscription{}, err
	}
	return created, nil
}

func (s *CachedSubscriptionStore) UpdateState(ctx context.Context, id string, expectedVersion int, state core.PlanState, planCode string) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	updated, err := s.base.UpdateState(ctx, id, expectedVersion, state, planCode)
	if err != nil {
		// A conflict means the cached version was stale; drop it either way.
		_ = s.invalidate(ctx, id)
		return core.Subscription{}, err
	}
	if err := s.invalidate(ctx, id); err != nil {
		return core.Subscription{}, err
	}
	return updated, nil
}

func (s *CachedSubscriptionStore) invalidate(ctx context.Context, id string) error {
	cacheKey, err := SubscriptionCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.SubscriptionStore = (*CachedSubscriptionStore)(nil)
