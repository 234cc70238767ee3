package queue

import (
	"time"

	"github.com/goliatone/go-inbox/core"
)

const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = time.Minute
)

// RetryPolicy maps (attempt, failure) onto either a terminal failure or a
// retry scheduled with exponential backoff. Attempt is 1-based and counted
// after the claim increment.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// Decision is the policy verdict for one failed attempt.
type Decision struct {
	Terminal  bool
	NextTryAt time.Time
}

// Decide classifies a dispatch failure. Explicitly terminal errors and
// exhausted attempts stop retrying; everything else is rescheduled.
func (p RetryPolicy) Decide(attempt int, now time.Time, cause error) Decision {
	if core.IsTerminal(cause) {
		return Decision{Terminal: true}
	}
	if attempt >= p.maxAttempts() {
		return Decision{Terminal: true}
	}
	return Decision{NextTryAt: now.UTC().Add(p.Delay(attempt))}
}

// Delay returns min(MaxDelay, InitialDelay * 2^(attempt-1)).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	maximum := p.MaxDelay
	if maximum <= 0 {
		maximum = DefaultMaxDelay
	}
	if attempt <= 1 {
		return minDuration(initial, maximum)
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	return delay
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
