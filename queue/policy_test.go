package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-inbox/core"
)

func TestRetryPolicy_DelaySequence(t *testing.T) {
	policy := DefaultRetryPolicy()
	expected := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
	}
	for attempt := 1; attempt <= len(expected); attempt++ {
		if got := policy.Delay(attempt); got != expected[attempt-1] {
			t.Fatalf("attempt %d: expected delay %s, got %s", attempt, expected[attempt-1], got)
		}
	}
	if got := policy.Delay(20); got != time.Minute {
		t.Fatalf("expected delay capped at 60s, got %s", got)
	}
}

func TestRetryPolicy_DecideRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	decision := policy.Decide(2, now, fmt.Errorf("transient"))
	if decision.Terminal {
		t.Fatalf("expected retry for untagged error under max attempts")
	}
	if !decision.NextTryAt.Equal(now.Add(2 * time.Second)) {
		t.Fatalf("expected next try at +2s, got %s", decision.NextTryAt)
	}
}

func TestRetryPolicy_DecideTerminalOnExhaustedAttempts(t *testing.T) {
	policy := DefaultRetryPolicy()
	now := time.Now().UTC()

	if decision := policy.Decide(5, now, fmt.Errorf("transient")); !decision.Terminal {
		t.Fatalf("expected terminal at attempt 5")
	}
	if decision := policy.Decide(4, now, fmt.Errorf("transient")); decision.Terminal {
		t.Fatalf("expected retry at attempt 4")
	}
}

func TestRetryPolicy_DecideTerminalOnTaggedError(t *testing.T) {
	policy := DefaultRetryPolicy()
	now := time.Now().UTC()

	if decision := policy.Decide(1, now, core.PlatformCallError(403, "forbidden")); !decision.Terminal {
		t.Fatalf("expected 403 terminal on first attempt")
	}
	if decision := policy.Decide(1, now, core.PlatformCallError(429, "slow down")); !decision.Terminal {
		t.Fatalf("expected explicit 429 status terminal")
	}
	if decision := policy.Decide(1, now, core.PlatformCallError(503, "unavailable")); decision.Terminal {
		t.Fatalf("expected 503 retryable")
	}
	if decision := policy.Decide(1, now, core.PlatformCallError(0, "connection reset")); decision.Terminal {
		t.Fatalf("expected transport failure retryable")
	}
}
