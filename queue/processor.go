package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-inbox/core"
)

const (
	DefaultBatchSize = 50
	DefaultLease     = time.Minute
)

// Dispatcher is the routing layer the processor hands claimed events to.
type Dispatcher interface {
	Dispatch(ctx context.Context, event core.Event) (core.Outcome, error)
}

// Processor runs one pass over the due backlog: fetch, claim, dispatch,
// reconcile. Dispatch failures are written back into the row via the retry
// policy; only store write failures surface as pass errors so one bad event
// never aborts the rest of the batch.
type Processor struct {
	store      core.EventStore
	dispatcher Dispatcher
	policy     RetryPolicy
	batchSize  int
	lease      time.Duration
	logger     core.Logger
	now        func() time.Time
}

type ProcessorOption func(*Processor)

func WithBatchSize(size int) ProcessorOption {
	return func(p *Processor) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

func WithLease(lease time.Duration) ProcessorOption {
	return func(p *Processor) {
		if lease > 0 {
			p.lease = lease
		}
	}
}

func WithRetryPolicy(policy RetryPolicy) ProcessorOption {
	return func(p *Processor) {
		p.policy = policy
	}
}

func WithProcessorLogger(logger core.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProcessor(store core.EventStore, dispatcher Dispatcher, options ...ProcessorOption) (*Processor, error) {
	if store == nil {
		return nil, fmt.Errorf("queue: event store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("queue: dispatcher is required")
	}
	processor := &Processor{
		store:      store,
		dispatcher: dispatcher,
		policy:     DefaultRetryPolicy(),
		batchSize:  DefaultBatchSize,
		lease:      DefaultLease,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		if option != nil {
			option(processor)
		}
	}
	return processor, nil
}

// RunPass processes up to one batch of due events. The returned stats cover
// the whole pass even when individual store writes failed.
func (p *Processor) RunPass(ctx context.Context) (core.PassStats, error) {
	stats := core.PassStats{}
	if p == nil || p.store == nil {
		return stats, fmt.Errorf("queue: processor is not configured")
	}

	now := p.now().UTC()
	events, err := p.store.FetchDue(ctx, p.batchSize, now)
	if err != nil {
		return stats, fmt.Errorf("queue: fetch due events: %w", err)
	}
	stats.Fetched = len(events)
	if len(events) == 0 {
		return stats, nil
	}

	var passErr error
	for _, event := range events {
		if ctx.Err() != nil {
			return stats, joinErrors(passErr, ctx.Err())
		}
		claimed, claimErr := p.store.Claim(ctx, event.ID, now, p.lease)
		if claimErr != nil {
			passErr = joinErrors(passErr, fmt.Errorf("queue: claim event %s: %w", event.ID, claimErr))
			continue
		}
		if !claimed {
			stats.LostRace++
			continue
		}
		stats.Claimed++
		// Claim incremented the persisted counter; mirror it for the policy.
		event.AttemptCount++

		if reconcileErr := p.processClaimed(ctx, event, now, &stats); reconcileErr != nil {
			passErr = joinErrors(passErr, reconcileErr)
		}
	}
	return stats, passErr
}

func (p *Processor) processClaimed(
	ctx context.Context,
	event core.Event,
	now time.Time,
	stats *core.PassStats,
) error {
	outcome, dispatchErr := p.dispatcher.Dispatch(ctx, event)
	if dispatchErr == nil {
		if outcome.Ignored {
			stats.Ignored++
			p.debug("event ignored", "event_id", event.ID, "reason", outcome.Reason)
			return wrapStoreErr("mark ignored", event.ID, p.store.MarkIgnored(ctx, event.ID, outcome.Reason))
		}
		stats.Done++
		return wrapStoreErr("mark done", event.ID, p.store.MarkDone(ctx, event.ID))
	}

	decision := p.policy.Decide(event.AttemptCount, now, dispatchErr)
	if decision.Terminal {
		stats.Failed++
		p.warn("event failed terminally",
			"event_id", event.ID,
			"attempt", event.AttemptCount,
			"error", dispatchErr,
		)
		return wrapStoreErr(
			"mark terminal failure",
			event.ID,
			p.store.MarkTerminalFailure(ctx, event.ID, dispatchErr.Error()),
		)
	}

	stats.Retried++
	p.debug("event scheduled for retry",
		"event_id", event.ID,
		"attempt", event.AttemptCount,
		"next_try_at", decision.NextTryAt,
		"error", dispatchErr,
	)
	return wrapStoreErr(
		"mark retryable failure",
		event.ID,
		p.store.MarkRetryableFailure(ctx, event.ID, dispatchErr.Error(), decision.NextTryAt),
	)
}

func (p *Processor) debug(msg string, args ...any) {
	if p != nil && p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) warn(msg string, args ...any) {
	if p != nil && p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func wrapStoreErr(operation string, eventID string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("queue: %s for event %s: %w", operation, eventID, err)
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
