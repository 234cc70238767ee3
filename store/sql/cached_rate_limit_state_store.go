package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-inbox/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const rateLimitStateCacheKeyPrefix = "go-inbox::ratelimit_state::v1"

// CachedRateLimitStateStore keeps throttle lookups off the hot dispatch path.
// Reads go through the cache; every upsert invalidates the sender's entry so
// the next read observes the fresh window.
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

// RateLimitStateCacheKey returns the deterministic cache key contract for
// rate-limit state reads: go-inbox::ratelimit_state::v1::<sender_key> with the
// sender segment URL-path escaped after key normalization.
func RateLimitStateCacheKey(senderKey string) string {
	normalized := ratelimit.NormalizeSenderKey(senderKey)
	return strings.Join([]string{
		rateLimitStateCacheKeyPrefix,
		url.PathEscape(normalized),
	}, "::")
}

func (s *CachedRateLimitStateStore) Get(ctx context.Context, senderKey string) (ratelimit.State, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	normalized := ratelimit.NormalizeSenderKey(senderKey)
	cacheKey := RateLimitStateCacheKey(normalized)

	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (ratelimit.State, error) {
		fetched, fetchErr := s.base.Get(ctx, normalized)
		if fetchErr != nil {
			return ratelimit.State{}, fetchErr
		}
		return cloneRateLimitState(fetched), nil
	})
	if err != nil {
		return ratelimit.State{}, err
	}
	return cloneRateLimitState(state), nil
}

func (s *CachedRateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	state.SenderKey = ratelimit.NormalizeSenderKey(state.SenderKey)
	state.Metadata = copyAnyMap(state.Metadata)

	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, RateLimitStateCacheKey(state.SenderKey)); err != nil {
		return err
	}
	return nil
}

func cloneRateLimitState(state ratelimit.State) ratelimit.State {
	cloned := state
	cloned.SenderKey = ratelimit.NormalizeSenderKey(state.SenderKey)
	cloned.Metadata = copyAnyMap(state.Metadata)
	cloned.ThrottledUntil = copyTimePointer(state.ThrottledUntil)
	return cloned
}

var _ ratelimit.StateStore = (*CachedRateLimitStateStore)(nil)
