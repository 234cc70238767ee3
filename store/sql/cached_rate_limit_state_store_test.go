package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-inbox/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubRateLimitStateStore struct {
	mu          sync.Mutex
	state       ratelimit.State
	getCalls    int
	upsertCalls int
	getErr      error
	upsertErr   error
}

func (s *stubRateLimitStateStore) Get(_ context.Context, _ string) (ratelimit.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return ratelimit.State{}, s.getErr
	}
	return cloneRateLimitState(s.state), nil
}

func (s *stubRateLimitStateStore) Upsert(_ context.Context, state ratelimit.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.state = cloneRateLimitState(state)
	return nil
}

func TestCachedRateLimitStateStore_Get_MissFetchThenHit(t *testing.T) {
	cacheService := newTestRateLimitCacheService(t)
	base := &stubRateLimitStateStore{
		state: ratelimit.State{
			SenderKey:  "usr_cache_1",
			Attempts:   1,
			LastStatus: 429,
			UpdatedAt:  time.Now().UTC(),
			Metadata:   map[string]any{"source": "base"},
		},
	}

	store, err := NewCachedRateLimitStateStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	if _, err := store.Get(context.Background(), "usr_cache_1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	if _, err := store.Get(context.Background(), "usr_cache_1"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedRateLimitStateStore_Upsert_InvalidatesCachedKey(t *testing.T) {
	cacheService := newTestRateLimitCacheService(t)
	base := &stubRateLimitStateStore{
		state: ratelimit.State{
			SenderKey:  "usr_cache_2",
			Attempts:   1,
			LastStatus: 429,
			UpdatedAt:  time.Now().UTC(),
		},
	}

	store, err := NewCachedRateLimitStateStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	if _, err := store.Get(context.Background(), "usr_cache_2"); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected one base read after cache prime, got %d", base.getCalls)
	}

	if err := store.Upsert(context.Background(), ratelimit.State{
		SenderKey:  "usr_cache_2",
		Attempts:   0,
		LastStatus: 200,
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("upsert through cached store: %v", err)
	}
	if base.upsertCalls != 1 {
		t.Fatalf("expected base upsert call count=1, got %d", base.upsertCalls)
	}

	state, err := store.Get(context.Background(), "usr_cache_2")
	if err != nil {
		t.Fatalf("get after upsert invalidation: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected invalidated key to force second base read, got %d", base.getCalls)
	}
	if state.Attempts != 0 || state.LastStatus != 200 {
		t.Fatalf("expected refreshed state, got %+v", state)
	}
}

func TestRateLimitStateCacheKey_Contract(t *testing.T) {
	key := RateLimitStateCacheKey(" usr/alpha one ")
	const expected = "go-inbox::ratelimit_state::v1::usr%2Falpha%20one"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if RateLimitStateCacheKey("  ") != "go-inbox::ratelimit_state::v1::unknown" {
		t.Fatalf("expected blank sender to map onto the unknown bucket key")
	}
}

func TestCachedRateLimitStateStore_PropagatesBaseErrors(t *testing.T) {
	cacheService := newTestRateLimitCacheService(t)
	base := &stubRateLimitStateStore{getErr: ratelimit.ErrStateNotFound}
	store, err := NewCachedRateLimitStateStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	if _, err := store.Get(context.Background(), "usr_cache_404"); !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func newTestRateLimitCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
