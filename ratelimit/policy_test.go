package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSenderGate_AllowsUnknownSender(t *testing.T) {
	gate := NewSenderGate(NewMemoryStateStore())
	if err := gate.BeforeSend(context.Background(), ""); err != nil {
		t.Fatalf("expected unknown sender to pass before first throttle: %v", err)
	}
}

func TestSenderGate_ThrottlesAfterTooManyRequests(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	gate := NewSenderGate(NewMemoryStateStore())
	gate.Now = func() time.Time { return now }

	if err := gate.AfterSend(context.Background(), "usr_1", 429); err != nil {
		t.Fatalf("record throttled response: %v", err)
	}

	err := gate.BeforeSend(context.Background(), "usr_1")
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if throttled.SenderKey != "usr_1" {
		t.Fatalf("expected sender key usr_1, got %q", throttled.SenderKey)
	}
	if throttled.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %s", throttled.RetryAfter)
	}

	now = now.Add(2 * time.Second)
	if err := gate.BeforeSend(context.Background(), "usr_1"); err != nil {
		t.Fatalf("expected throttle window to expire: %v", err)
	}
}

func TestSenderGate_BackoffGrowsAndResets(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStateStore()
	gate := NewSenderGate(store)
	gate.Now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := gate.AfterSend(context.Background(), "usr_2", 429); err != nil {
			t.Fatalf("record throttled response %d: %v", i, err)
		}
	}
	state, err := store.Get(context.Background(), "usr_2")
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.Attempts != 3 {
		t.Fatalf("expected 3 throttle attempts, got %d", state.Attempts)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(now.Add(4*time.Second)) {
		t.Fatalf("expected 4s backoff on third attempt, got %v", state.ThrottledUntil)
	}

	if err := gate.AfterSend(context.Background(), "usr_2", 200); err != nil {
		t.Fatalf("record success: %v", err)
	}
	state, err = store.Get(context.Background(), "usr_2")
	if err != nil {
		t.Fatalf("load state after success: %v", err)
	}
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("expected throttle state cleared on success, got %+v", state)
	}
}

func TestNormalizeSenderKey(t *testing.T) {
	if NormalizeSenderKey("  ") != UnknownSenderKey {
		t.Fatalf("expected blank sender to map to unknown key")
	}
	if NormalizeSenderKey(" usr_3 ") != "usr_3" {
		t.Fatalf("expected trimmed sender key")
	}
}

func TestThrottledError_ToServiceError(t *testing.T) {
	serviceErr := ThrottledError{SenderKey: "usr_4", RetryAfter: 5 * time.Second}.ToServiceError()
	if serviceErr.Code != 429 {
		t.Fatalf("expected 429 code, got %d", serviceErr.Code)
	}
	if serviceErr.Metadata["retry_after_ms"] != int64(5000) {
		t.Fatalf("expected retry_after_ms metadata, got %v", serviceErr.Metadata["retry_after_ms"])
	}
}
