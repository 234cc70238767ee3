package sqlstore

import (
	"time"

	"github.com/goliatone/go-inbox/core"
	"github.com/uptrace/bun"
)

type inboxEventRecord struct {
	bun.BaseModel `bun:"table:inbox_events,alias:ie"`

	ID               string     `bun:"id,pk"`
	ExternalEventID  string     `bun:"external_event_id,notnull"`
	EventType        string     `bun:"event_type,notnull"`
	Status           string     `bun:"status,notnull"`
	ReceivedAt       time.Time  `bun:"received_at,notnull"`
	SourceTimestamp  time.Time  `bun:"source_timestamp,notnull"`
	AttemptCount     int        `bun:"attempt_count,notnull"`
	NextTryAt        *time.Time `bun:"next_try_at,nullzero"`
	LastErrorMessage string     `bun:"last_error_message"`
	MessageID        string     `bun:"message_id"`
	ReplyToken       string     `bun:"reply_token"`
	QuoteToken       string     `bun:"quote_token"`
	Text             string     `bun:"text"`
	SenderID         string     `bun:"sender_id"`
	GroupID          string     `bun:"group_id"`
	MentionsBot      bool       `bun:"mentions_bot,notnull"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *inboxEventRecord) toDomain() core.Event {
	if r == nil {
		return core.Event{}
	}
	event := core.Event{
		ID:               r.ID,
		ExternalEventID:  r.ExternalEventID,
		EventType:        core.EventType(r.EventType),
		Status:           core.EventStatus(r.Status),
		ReceivedAt:       r.ReceivedAt,
		SourceTimestamp:  r.SourceTimestamp,
		AttemptCount:     r.AttemptCount,
		LastErrorMessage: r.LastErrorMessage,
		MessageID:        r.MessageID,
		ReplyToken:       r.ReplyToken,
		QuoteToken:       r.QuoteToken,
		Text:             r.Text,
		SenderID:         r.SenderID,
		GroupID:          r.GroupID,
		MentionsBot:      r.MentionsBot,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.NextTryAt != nil {
		value := r.NextTryAt.UTC()
		event.NextTryAt = &value
	}
	return event
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:inbox_rate_limit_states,alias:irl"`

	ID             string         `bun:"id,pk"`
	SenderKey      string         `bun:"sender_key,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	LastStatus     int            `bun:"last_status,notnull"`
	ThrottledUntil *time.Time     `bun:"throttled_until,nullzero"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
