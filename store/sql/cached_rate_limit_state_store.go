package sqlstore

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goliatone/go-clientkit/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const rateLimitStateCacheKeyPrefix = "go-clientkit::ratelimit_state::v1"

// CachedRateLimitStateStore serves reads from a cache and invalidates the
// cached entry on every write.
type CachedRateLimitStateStore struct {
	base  ratelimit.StateStore
	cache repositorycache.CacheService
}

func NewCachedRateLimitStateStore(
	base ratelimit.StateStore,
	cacheService repositorycache.CacheService,
) (*CachedRateLimitStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base rate-limit state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: rate-limit cache service is required")
	}
	return &CachedRateLimitStateStore{base: base, cache: cacheService}, nil
}

// RateLimitStateCacheKey returns go-clientkit::ratelimit_state::v1::<bucket_key>
// with the normalized key URL-path escaped.
func RateLimitStateCacheKey(key string) (string, error) {
	normalized := ratelimit.NormalizeKey(key)
	if normalized == "" {
		return "", fmt.Errorf("sqlstore: rate-limit bucket key is required")
	}
	return rateLimitStateCacheKeyPrefix + "::" + url.PathEscape(normalized), nil
}

func (s *CachedRateLimitStateStore) Get(ctx context.Context, key string) (ratelimit.State, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	normalized := ratelimit.NormalizeKey(key)
	cacheKey, err := RateLimitStateCacheKey(normalized)
	if err != nil {
		return ratelimit.State{}, err
	}

	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (ratelimit.State, error) {
		fetched, fetchErr := s.base.Get(ctx, normalized)
		if fetchErr != nil {
			return ratelimit.State{}, fetchErr
		}
		return cloneState(fetched), nil
	})
	if err != nil {
		return ratelimit.State{}, err
	}
	return cloneState(state), nil
}

func (s *CachedRateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	cacheKey, err := RateLimitStateCacheKey(state.Key)
	if err != nil {
		return err
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if err := s.base.Upsert(ctx, cloneState(state)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneState(state ratelimit.State) ratelimit.State {
	cloned := state
	cloned.Key = ratelimit.NormalizeKey(state.Key)
	cloned.Metadata = copyAnyMap(state.Metadata)
	return cloned
}
