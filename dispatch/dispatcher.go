package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

// EventKind is the tagged classification of a claimed event, decided once per
// dispatch. Each variant carries only the fields its handler needs.
type EventKind interface {
	isEventKind()
}

// TextMessageKind routes to the plain-message handler.
type TextMessageKind struct {
	Message core.InboundMessage
}

// RegistrationKind routes a mention directed at the bot to the
// language-registration handler.
type RegistrationKind struct {
	Request core.RegistrationRequest
}

// RetractionKind masks the text of an earlier message.
type RetractionKind struct {
	MessageID string
}

// SupersededKind marks a message whose retraction was persisted before the
// message itself was dispatched. The retraction handler runs, the original
// message is never replied to.
type SupersededKind struct {
	MessageID string
}

// UnsupportedKind is everything the pipeline ignores, with the reason recorded
// on the row.
type UnsupportedKind struct {
	Reason string
}

func (TextMessageKind) isEventKind()  {}
func (RegistrationKind) isEventKind() {}
func (RetractionKind) isEventKind()   {}
func (SupersededKind) isEventKind()   {}
func (UnsupportedKind) isEventKind()  {}

// UnsendChecker is the single store lookup dispatch needs.
type UnsendChecker interface {
	HasUnsendFor(ctx context.Context, messageID string) (bool, error)
}

// Dispatcher classifies a claimed event and routes it to the matching handler.
// Handler errors are never swallowed into an ignored outcome; they propagate
// so the retry policy can classify them.
type Dispatcher struct {
	events        UnsendChecker
	messages      core.MessageHandler
	retractions   core.RetractionHandler
	registrations core.RegistrationHandler
	logger        core.Logger
}

type Option func(*Dispatcher)

func WithLogger(logger core.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func New(
	events UnsendChecker,
	messages core.MessageHandler,
	retractions core.RetractionHandler,
	registrations core.RegistrationHandler,
	options ...Option,
) (*Dispatcher, error) {
	if events == nil {
		return nil, fmt.Errorf("dispatch: unsend checker is required")
	}
	if messages == nil {
		return nil, fmt.Errorf("dispatch: message handler is required")
	}
	if retractions == nil {
		return nil, fmt.Errorf("dispatch: retraction handler is required")
	}
	if registrations == nil {
		return nil, fmt.Errorf("dispatch: registration handler is required")
	}
	dispatcher := &Dispatcher{
		events:        events,
		messages:      messages,
		retractions:   retractions,
		registrations: registrations,
	}
	for _, option := range options {
		if option != nil {
			option(dispatcher)
		}
	}
	return dispatcher, nil
}

// Dispatch resolves the event's kind and runs the matching handler, returning
// done, ignored with a reason, or the handler's error untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, event core.Event) (core.Outcome, error) {
	if d == nil {
		return core.Outcome{}, fmt.Errorf("dispatch: dispatcher is nil")
	}

	kind, err := d.Resolve(ctx, event)
	if err != nil {
		return core.Outcome{}, err
	}

	switch k := kind.(type) {
	case TextMessageKind:
		if err := d.messages.HandleMessage(ctx, k.Message); err != nil {
			return core.Outcome{}, err
		}
		return core.Done(), nil
	case RegistrationKind:
		if err := d.registrations.HandleRegistration(ctx, k.Request); err != nil {
			return core.Outcome{}, err
		}
		return core.Done(), nil
	case RetractionKind:
		if err := d.retractions.HandleRetraction(ctx, k.MessageID); err != nil {
			return core.Outcome{}, err
		}
		return core.Done(), nil
	case SupersededKind:
		if err := d.retractions.HandleRetraction(ctx, k.MessageID); err != nil {
			return core.Outcome{}, err
		}
		d.debug(ctx, "message superseded by persisted unsend", "message_id", k.MessageID)
		return core.Ignored("message retracted before dispatch"), nil
	case UnsupportedKind:
		return core.Ignored(k.Reason), nil
	default:
		return core.Outcome{}, fmt.Errorf("dispatch: unexpected event kind %T", kind)
	}
}

// Resolve maps an event onto its kind. The persisted-retraction lookup runs
// before any payload precondition so a raced unsend always wins.
func (d *Dispatcher) Resolve(ctx context.Context, event core.Event) (EventKind, error) {
	switch event.EventType {
	case core.EventTypeMessage:
		return d.resolveMessage(ctx, event)
	case core.EventTypeUnsend:
		if strings.TrimSpace(event.MessageID) == "" {
			return UnsupportedKind{Reason: "unsend event without message id"}, nil
		}
		return RetractionKind{MessageID: strings.TrimSpace(event.MessageID)}, nil
	default:
		return UnsupportedKind{
			Reason: fmt.Sprintf("unsupported event type %q", string(event.EventType)),
		}, nil
	}
}

func (d *Dispatcher) resolveMessage(ctx context.Context, event core.Event) (EventKind, error) {
	messageID := strings.TrimSpace(event.MessageID)
	if messageID == "" {
		return UnsupportedKind{Reason: "message event without message id"}, nil
	}

	retracted, err := d.events.HasUnsendFor(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if retracted {
		return SupersededKind{MessageID: messageID}, nil
	}

	if strings.TrimSpace(event.Text) == "" {
		return UnsupportedKind{Reason: "message event without text"}, nil
	}
	if strings.TrimSpace(event.ReplyToken) == "" {
		return UnsupportedKind{Reason: "message event without reply token"}, nil
	}
	if strings.TrimSpace(event.QuoteToken) == "" {
		return UnsupportedKind{Reason: "message event without quote token"}, nil
	}

	if event.MentionsBot {
		if strings.TrimSpace(event.GroupID) == "" {
			return UnsupportedKind{Reason: "bot mention without group id"}, nil
		}
		return RegistrationKind{Request: core.RegistrationRequest{
			SenderID:   event.SenderID,
			ReplyToken: event.ReplyToken,
			QuoteToken: event.QuoteToken,
			GroupID:    event.GroupID,
			Text:       event.Text,
		}}, nil
	}

	return TextMessageKind{Message: core.InboundMessage{
		ReplyToken: event.ReplyToken,
		QuoteToken: event.QuoteToken,
		Text:       event.Text,
		SenderID:   event.SenderID,
		GroupID:    event.GroupID,
	}}, nil
}

func (d *Dispatcher) debug(_ context.Context, msg string, args ...any) {
	if d == nil || d.logger == nil {
		return
	}
	d.logger.Debug(msg, args...)
}
