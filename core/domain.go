package core

import (
	"fmt"
	"strings"
	"time"
)

type EventStatus string

const (
	EventStatusReceived        EventStatus = "received"
	EventStatusProcessing      EventStatus = "processing"
	EventStatusDone            EventStatus = "done"
	EventStatusIgnored         EventStatus = "ignored"
	EventStatusFailedRetryable EventStatus = "failed_retryable"
	EventStatusFailedTerminal  EventStatus = "failed_terminal"
)

// Terminal reports whether the status is final: terminal rows carry no
// next_try_at and are never claimed again.
func (s EventStatus) Terminal() bool {
	switch s {
	case EventStatusDone, EventStatusIgnored, EventStatusFailedTerminal:
		return true
	default:
		return false
	}
}

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusReceived, EventStatusProcessing, EventStatusDone,
		EventStatusIgnored, EventStatusFailedRetryable, EventStatusFailedTerminal:
		return true
	default:
		return false
	}
}

type EventType string

const (
	EventTypeMessage EventType = "message"
	EventTypeUnsend  EventType = "unsend"
	EventTypeJoin    EventType = "join"
	EventTypeOther   EventType = "other"
)

func NormalizeEventType(value string) EventType {
	switch EventType(strings.TrimSpace(strings.ToLower(value))) {
	case EventTypeMessage:
		return EventTypeMessage
	case EventTypeUnsend:
		return EventTypeUnsend
	case EventTypeJoin:
		return EventTypeJoin
	default:
		return EventTypeOther
	}
}

// Event is one row of the durable inbound-event queue. Payload fields past
// LastErrorMessage are pass-through data owned by the handlers; the queue
// never interprets them beyond dispatch-time precondition checks.
type Event struct {
	ID               string
	ExternalEventID  string
	EventType        EventType
	Status           EventStatus
	ReceivedAt       time.Time
	SourceTimestamp  time.Time
	AttemptCount     int
	NextTryAt        *time.Time
	LastErrorMessage string

	MessageID   string
	ReplyToken  string
	QuoteToken  string
	Text        string
	SenderID    string
	GroupID     string
	MentionsBot bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.ExternalEventID) == "" {
		return fmt.Errorf("core: external event id is required")
	}
	if e.SourceTimestamp.IsZero() {
		return fmt.Errorf("core: source timestamp is required")
	}
	return nil
}

// Outcome is the result of dispatching one claimed event: either done or
// ignored with a reason. Handler errors are not outcomes; they propagate to
// the retry policy.
type Outcome struct {
	Ignored bool
	Reason  string
}

func Done() Outcome {
	return Outcome{}
}

func Ignored(reason string) Outcome {
	return Outcome{Ignored: true, Reason: strings.TrimSpace(reason)}
}

// InboundMessage carries the fields the plain-message handler consumes.
type InboundMessage struct {
	ReplyToken string
	QuoteToken string
	Text       string
	SenderID   string
	GroupID    string
}

// RegistrationRequest carries the fields the language-registration handler
// consumes; GroupID is always present by the time dispatch routes here.
type RegistrationRequest struct {
	SenderID   string
	ReplyToken string
	QuoteToken string
	GroupID    string
	Text       string
}

// PassStats summarizes one processing pass over the due backlog.
type PassStats struct {
	Fetched  int
	Claimed  int
	Done     int
	Ignored  int
	Retried  int
	Failed   int
	LostRace int
}
