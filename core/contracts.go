package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// EventStore is the durable queue backing the pipeline. Claim is the single
// serialization point: all other operations may run concurrently across
// worker instances without additional locking.
type EventStore interface {
	// InsertBatch persists rows idempotently; duplicates by external event id
	// are silently skipped. Returns the number of rows actually inserted.
	InsertBatch(ctx context.Context, events []Event) (int, error)

	// FetchDue returns claimable events ordered by (next_try_at, source
	// timestamp). Rows stuck in processing past their lease are included,
	// which is what recovers from a worker crash mid-pass.
	FetchDue(ctx context.Context, limit int, now time.Time) ([]Event, error)

	// Claim transitions a row to processing, increments the attempt count and
	// sets the lease expiry, but only while the row still satisfies the due
	// predicate. A false return means another worker won the race.
	Claim(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error)

	MarkDone(ctx context.Context, id string) error
	MarkIgnored(ctx context.Context, id string, reason string) error
	MarkRetryableFailure(ctx context.Context, id string, message string, nextTryAt time.Time) error
	MarkTerminalFailure(ctx context.Context, id string, message string) error

	// HasUnsendFor reports whether a retraction for the given message id was
	// already persisted, used to detect an unsend that raced ahead of its
	// message event.
	HasUnsendFor(ctx context.Context, messageID string) (bool, error)
}

// EventReader covers the inspection surface used by the query handlers.
type EventReader interface {
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
}

type EventFilter struct {
	Status    EventStatus
	EventType EventType
	Limit     int
}

// StoreProvider hands out the persistence-backed stores a pipeline needs.
// Implemented by the sqlstore repository factory.
type StoreProvider interface {
	EventStore() EventStore
	EventReader() EventReader
}

// MessageHandler replies to a plain inbound message. Implementations live
// outside the queue (translation engine, outbound platform client) and may
// return errors classified via PlatformCallError.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg InboundMessage) error
}

// RetractionHandler masks the stored text of a retracted message. It must
// surface a retryable error when the target message row does not exist yet.
type RetractionHandler interface {
	HandleRetraction(ctx context.Context, messageID string) error
}

// RegistrationHandler processes a mention-triggered language registration.
type RegistrationHandler interface {
	HandleRegistration(ctx context.Context, req RegistrationRequest) error
}

// RateLimitGate is the per-sender allow/deny oracle consulted by handlers,
// never by the queue itself.
type RateLimitGate interface {
	BeforeSend(ctx context.Context, senderID string) error
	AfterSend(ctx context.Context, senderID string, status int) error
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// Job contracts bridge pass execution onto an external queue/worker runtime
// (see adapters/gojob). They mirror the minimum surface the adapters need.

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
