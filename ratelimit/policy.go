package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-inbox/core"
)

// UnknownSenderKey buckets traffic whose sender identity is absent so
// anonymous events still share one throttle window.
const UnknownSenderKey = "unknown"

var ErrStateNotFound = errors.New("ratelimit: state not found")

type State struct {
	SenderKey      string
	Attempts       int
	LastStatus     int
	ThrottledUntil *time.Time
	UpdatedAt      time.Time
	Metadata       map[string]any
}

type StateStore interface {
	Get(ctx context.Context, senderKey string) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	SenderKey  string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: sender %q throttled for %s",
		strings.TrimSpace(e.SenderKey),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"sender_key": strings.TrimSpace(e.SenderKey),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.InboxErrorRateLimited).
		WithMetadata(metadata)
}

// SenderGate throttles outbound replies per sender. Handlers consult it before
// and after each platform call; the queue itself never does.
type SenderGate struct {
	Store          StateStore
	Now            func() time.Time
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewSenderGate(store StateStore) *SenderGate {
	return &SenderGate{
		Store:          store,
		Now:            func() time.Time { return time.Now().UTC() },
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
}

func (g *SenderGate) BeforeSend(ctx context.Context, senderID string) error {
	if g == nil || g.Store == nil {
		return nil
	}
	state, err := g.Store.Get(ctx, NormalizeSenderKey(senderID))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := g.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{SenderKey: state.SenderKey, RetryAfter: until.Sub(now)}
	}
	return nil
}

func (g *SenderGate) AfterSend(ctx context.Context, senderID string, status int) error {
	if g == nil || g.Store == nil {
		return nil
	}
	key := NormalizeSenderKey(senderID)
	now := g.now()
	state, err := g.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{SenderKey: key}
	}

	state.LastStatus = status
	state.UpdatedAt = now

	if status == http.StatusTooManyRequests {
		state.Attempts++
		until := now.Add(g.nextBackoff(state.Attempts))
		state.ThrottledUntil = &until
		return g.Store.Upsert(ctx, state)
	}

	state.Attempts = 0
	state.ThrottledUntil = nil
	return g.Store.Upsert(ctx, state)
}

func (g *SenderGate) now() time.Time {
	if g != nil && g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *SenderGate) nextBackoff(attempt int) time.Duration {
	initial := g.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maximum := g.MaxBackoff
	if maximum <= 0 {
		maximum = time.Minute
	}
	if attempt <= 0 {
		return initial
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func NormalizeSenderKey(senderID string) string {
	key := strings.TrimSpace(senderID)
	if key == "" {
		return UnknownSenderKey
	}
	return key
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, senderKey string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[NormalizeSenderKey(senderKey)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = cloneMap(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.SenderKey = NormalizeSenderKey(state.SenderKey)
	state.Metadata = cloneMap(state.Metadata)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.SenderKey] = state
	return nil
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

var _ core.RateLimitGate = (*SenderGate)(nil)
