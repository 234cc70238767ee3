package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-inbox/core"
)

const DefaultPollInterval = 3 * time.Second

// PassRunner is the unit of work the runner serializes; implemented by
// Processor.RunPass.
type PassRunner interface {
	RunPass(ctx context.Context) (core.PassStats, error)
}

// Runner owns the at-most-one-pass-per-instance contract. Kick starts a pass
// unless one is already in flight, in which case it hands back the in-flight
// pass's completion channel. An interval ticker kicks on its own once Start
// is called.
type Runner struct {
	processor PassRunner
	interval  time.Duration
	logger    core.Logger

	mu       sync.Mutex
	inflight chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	loopDone chan struct{}
}

type RunnerOption func(*Runner)

func WithInterval(interval time.Duration) RunnerOption {
	return func(r *Runner) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

func WithRunnerLogger(logger core.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

func NewRunner(processor PassRunner, options ...RunnerOption) (*Runner, error) {
	if processor == nil {
		return nil, fmt.Errorf("queue: pass runner is required")
	}
	runner := &Runner{
		processor: processor,
		interval:  DefaultPollInterval,
		stopCh:    make(chan struct{}),
	}
	for _, option := range options {
		if option != nil {
			option(runner)
		}
	}
	return runner, nil
}

// Kick runs a pass if none is in flight and returns a channel closed when
// that pass (new or already running) completes. Never blocks.
func (r *Runner) Kick(ctx context.Context) <-chan struct{} {
	r.mu.Lock()
	if r.inflight != nil {
		done := r.inflight
		r.mu.Unlock()
		return done
	}
	done := make(chan struct{})
	r.inflight = done
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			r.inflight = nil
			r.mu.Unlock()
			close(done)
		}()
		stats, err := r.processor.RunPass(ctx)
		if err != nil {
			r.warn("processing pass finished with errors", "error", err, "stats", fmt.Sprintf("%+v", stats))
			return
		}
		if stats.Claimed > 0 {
			r.debug("processing pass complete",
				"fetched", stats.Fetched,
				"claimed", stats.Claimed,
				"done", stats.Done,
				"ignored", stats.Ignored,
				"retried", stats.Retried,
				"failed", stats.Failed,
				"lost_race", stats.LostRace,
			)
		}
	}()
	return done
}

// WaitIdle reports whether no pass is in flight. With a positive timeout it
// waits up to that long for the current pass to finish; with a zero or
// negative timeout it only polls.
func (r *Runner) WaitIdle(timeout time.Duration) bool {
	r.mu.Lock()
	done := r.inflight
	r.mu.Unlock()
	if done == nil {
		return true
	}
	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Start launches the interval ticker. Stop or context cancellation ends it;
// an in-flight pass is not interrupted, use WaitIdle to drain.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.processor == nil {
		return fmt.Errorf("queue: runner is not configured")
	}
	r.mu.Lock()
	if r.loopDone != nil {
		r.mu.Unlock()
		return fmt.Errorf("queue: runner already started")
	}
	loopDone := make(chan struct{})
	r.loopDone = loopDone
	r.mu.Unlock()

	go func() {
		defer close(loopDone)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.Kick(ctx)
			}
		}
	}()
	return nil
}

// Stop halts the ticker loop. Idempotent.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.mu.Lock()
	loopDone := r.loopDone
	r.mu.Unlock()
	if loopDone != nil {
		<-loopDone
	}
}

func (r *Runner) debug(msg string, args ...any) {
	if r != nil && r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Runner) warn(msg string, args ...any) {
	if r != nil && r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
