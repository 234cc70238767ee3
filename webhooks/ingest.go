package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
)

// Verifier authenticates a raw callback body against its platform signature
// before parsing. Implementations live outside this package; the pipeline only
// requires the contract.
type Verifier interface {
	Verify(body []byte, signature string) error
}

// Trigger is the on-demand processing signal fired after ingestion persists
// new rows. Implemented by queue.Runner.
type Trigger interface {
	Kick(ctx context.Context) <-chan struct{}
}

// CallbackPayload is the platform's webhook envelope: one delivery carries a
// batch of events.
type CallbackPayload struct {
	Destination string          `json:"destination"`
	Events      []CallbackEvent `json:"events"`
}

type CallbackEvent struct {
	Type           string           `json:"type"`
	WebhookEventID string           `json:"webhookEventId"`
	Timestamp      int64            `json:"timestamp"`
	ReplyToken     string           `json:"replyToken"`
	Source         *CallbackSource  `json:"source"`
	Message        *CallbackMessage `json:"message"`
	Unsend         *CallbackUnsend  `json:"unsend"`
}

type CallbackSource struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
}

type CallbackMessage struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Text       string           `json:"text"`
	QuoteToken string           `json:"quoteToken"`
	Mention    *CallbackMention `json:"mention"`
}

type CallbackUnsend struct {
	MessageID string `json:"messageId"`
}

type CallbackMention struct {
	Mentionees []CallbackMentionee `json:"mentionees"`
}

type CallbackMentionee struct {
	Type   string `json:"type"`
	IsSelf bool   `json:"isSelf"`
}

// ParseCallback maps a raw callback body onto event rows. Events without a
// webhook event id are skipped: without the natural key the idempotent insert
// cannot deduplicate redeliveries.
func ParseCallback(body []byte) ([]core.Event, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("webhooks: callback body is empty")
	}
	payload := CallbackPayload{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("webhooks: decode callback payload: %w", err)
	}

	events := make([]core.Event, 0, len(payload.Events))
	for _, callbackEvent := range payload.Events {
		if strings.TrimSpace(callbackEvent.WebhookEventID) == "" {
			continue
		}
		events = append(events, callbackEvent.toEvent())
	}
	return events, nil
}

func (e CallbackEvent) toEvent() core.Event {
	event := core.Event{
		ExternalEventID: strings.TrimSpace(e.WebhookEventID),
		EventType:       core.NormalizeEventType(e.Type),
		Status:          core.EventStatusReceived,
		SourceTimestamp: time.UnixMilli(e.Timestamp).UTC(),
		ReplyToken:      strings.TrimSpace(e.ReplyToken),
	}
	if e.Source != nil {
		event.SenderID = strings.TrimSpace(e.Source.UserID)
		event.GroupID = strings.TrimSpace(e.Source.GroupID)
	}
	if e.Message != nil {
		event.MessageID = strings.TrimSpace(e.Message.ID)
		event.Text = e.Message.Text
		event.QuoteToken = strings.TrimSpace(e.Message.QuoteToken)
		event.MentionsBot = mentionsSelf(e.Message.Mention)
	}
	if e.Unsend != nil {
		event.MessageID = strings.TrimSpace(e.Unsend.MessageID)
	}
	return event
}

func mentionsSelf(mention *CallbackMention) bool {
	if mention == nil {
		return false
	}
	for _, mentionee := range mention.Mentionees {
		if mentionee.IsSelf {
			return true
		}
	}
	return false
}

// Ingestor is the ingestion boundary: rows are persisted before the source is
// acknowledged, and the runner is kicked only after a successful persist. A
// persist failure propagates so the upstream redelivers.
type Ingestor struct {
	store    core.EventStore
	trigger  Trigger
	verifier Verifier
	logger   core.Logger
}

type IngestorOption func(*Ingestor)

func WithVerifier(verifier Verifier) IngestorOption {
	return func(i *Ingestor) {
		i.verifier = verifier
	}
}

func WithIngestLogger(logger core.Logger) IngestorOption {
	return func(i *Ingestor) {
		i.logger = logger
	}
}

func NewIngestor(store core.EventStore, trigger Trigger, options ...IngestorOption) (*Ingestor, error) {
	if store == nil {
		return nil, fmt.Errorf("webhooks: event store is required")
	}
	if trigger == nil {
		return nil, fmt.Errorf("webhooks: trigger is required")
	}
	ingestor := &Ingestor{store: store, trigger: trigger}
	for _, option := range options {
		if option != nil {
			option(ingestor)
		}
	}
	return ingestor, nil
}

// IngestCallback verifies, parses and persists one raw callback delivery,
// returning the number of new rows.
func (i *Ingestor) IngestCallback(ctx context.Context, body []byte, signature string) (int, error) {
	if i == nil || i.store == nil {
		return 0, fmt.Errorf("webhooks: ingestor is not configured")
	}
	if i.verifier != nil {
		if err := i.verifier.Verify(body, signature); err != nil {
			return 0, fmt.Errorf("webhooks: signature verification failed: %w", err)
		}
	}
	events, err := ParseCallback(body)
	if err != nil {
		return 0, err
	}
	return i.Ingest(ctx, events)
}

// Ingest persists already-parsed rows and kicks the processor.
func (i *Ingestor) Ingest(ctx context.Context, events []core.Event) (int, error) {
	if i == nil || i.store == nil {
		return 0, fmt.Errorf("webhooks: ingestor is not configured")
	}
	if len(events) == 0 {
		return 0, nil
	}
	inserted, err := i.store.InsertBatch(ctx, events)
	if err != nil {
		return 0, fmt.Errorf("webhooks: persist events: %w", err)
	}
	if i.logger != nil && inserted < len(events) {
		i.logger.Debug("skipped duplicate events",
			"received", len(events),
			"inserted", inserted,
		)
	}
	if i.trigger != nil {
		i.trigger.Kick(ctx)
	}
	return inserted, nil
}
