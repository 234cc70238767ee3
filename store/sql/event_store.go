package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// claimableStatuses is the due predicate shared by FetchDue and Claim. Rows in
// processing are included so an expired lease can be re-claimed after a worker
// crash.
var claimableStatuses = []string{
	string(core.EventStatusReceived),
	string(core.EventStatusFailedRetryable),
	string(core.EventStatusProcessing),
}

type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*inboxEventRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*inboxEventRecord](db, eventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event repository wiring: %w", err)
		}
	}
	return &EventStore{db: db, repo: repo}, nil
}

func (s *EventStore) InsertBatch(ctx context.Context, events []core.Event) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: event store is not configured")
	}
	if len(events) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	records := make([]*inboxEventRecord, 0, len(events))
	for _, event := range events {
		if err := event.Validate(); err != nil {
			return 0, err
		}
		record := newEventRecord(event, now)
		records = append(records, record)
	}

	res, err := s.db.NewInsert().
		Model(&records).
		On("CONFLICT (external_event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(inserted), nil
}

func (s *EventStore) FetchDue(ctx context.Context, limit int, now time.Time) ([]core.Event, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}

	var records []inboxEventRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status IN (?)", bun.In(claimableStatuses)).
		Where("?TableAlias.next_try_at <= ?", now.UTC()).
		OrderExpr("?TableAlias.next_try_at ASC, ?TableAlias.source_timestamp ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]core.Event, 0, len(records))
	for i := range records {
		events = append(events, records[i].toDomain())
	}
	return events, nil
}

func (s *EventStore) Claim(
	ctx context.Context,
	id string,
	now time.Time,
	lease time.Duration,
) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("sqlstore: event id is required")
	}
	if lease <= 0 {
		lease = time.Minute
	}

	now = now.UTC()
	res, err := s.db.NewUpdate().
		Model((*inboxEventRecord)(nil)).
		Set("status = ?", string(core.EventStatusProcessing)).
		Set("attempt_count = attempt_count + 1").
		Set("next_try_at = ?", now.Add(lease)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(claimableStatuses)).
		Where("next_try_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *EventStore) MarkDone(ctx context.Context, id string) error {
	return s.markResolved(ctx, id, core.EventStatusDone, "")
}

func (s *EventStore) MarkIgnored(ctx context.Context, id string, reason string) error {
	return s.markResolved(ctx, id, core.EventStatusIgnored, reason)
}

func (s *EventStore) MarkRetryableFailure(
	ctx context.Context,
	id string,
	message string,
	nextTryAt time.Time,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*inboxEventRecord)(nil)).
		Set("status = ?", string(core.EventStatusFailedRetryable)).
		Set("last_error_message = ?", strings.TrimSpace(message)).
		Set("next_try_at = ?", nextTryAt.UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *EventStore) MarkTerminalFailure(ctx context.Context, id string, message string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*inboxEventRecord)(nil)).
		Set("status = ?", string(core.EventStatusFailedTerminal)).
		Set("last_error_message = ?", strings.TrimSpace(message)).
		Set("next_try_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *EventStore) HasUnsendFor(ctx context.Context, messageID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: event store is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, nil
	}
	count, err := s.db.NewSelect().
		Model((*inboxEventRecord)(nil)).
		Where("?TableAlias.event_type = ?", string(core.EventTypeUnsend)).
		Where("?TableAlias.message_id = ?", messageID).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MaskMessageText blanks the stored text of a persisted message event. It
// returns core.ErrMessageNotFound when no message row exists yet, which the
// retraction handler surfaces as retryable.
func (s *EventStore) MaskMessageText(ctx context.Context, messageID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return fmt.Errorf("sqlstore: message id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*inboxEventRecord)(nil)).
		Set("text = ''").
		Set("updated_at = ?", time.Now().UTC()).
		Where("event_type = ?", string(core.EventTypeMessage)).
		Where("message_id = ?", messageID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: message id %q", core.ErrMessageNotFound, messageID)
	}
	return nil
}

func (s *EventStore) GetEvent(ctx context.Context, id string) (core.Event, error) {
	if s == nil || s.db == nil {
		return core.Event{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	record := &inboxEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Event{}, fmt.Errorf("sqlstore: event not found for id %q", id)
		}
		return core.Event{}, err
	}
	return record.toDomain(), nil
}

func (s *EventStore) ListEvents(ctx context.Context, filter core.EventFilter) ([]core.Event, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := s.db.NewSelect().
		Model((*inboxEventRecord)(nil)).
		OrderExpr("?TableAlias.received_at DESC").
		Limit(limit)
	if filter.Status != "" {
		query = query.Where("?TableAlias.status = ?", string(filter.Status))
	}
	if filter.EventType != "" {
		query = query.Where("?TableAlias.event_type = ?", string(filter.EventType))
	}

	var records []inboxEventRecord
	if err := query.Scan(ctx, &records); err != nil {
		return nil, err
	}
	events := make([]core.Event, 0, len(records))
	for i := range records {
		events = append(events, records[i].toDomain())
	}
	return events, nil
}

func (s *EventStore) markResolved(
	ctx context.Context,
	id string,
	status core.EventStatus,
	reason string,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*inboxEventRecord)(nil)).
		Set("status = ?", string(status)).
		Set("last_error_message = ?", strings.TrimSpace(reason)).
		Set("next_try_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func newEventRecord(event core.Event, now time.Time) *inboxEventRecord {
	id := strings.TrimSpace(event.ID)
	if id == "" {
		id = uuid.NewString()
	}
	status := event.Status
	if status == "" {
		status = core.EventStatusReceived
	}
	receivedAt := event.ReceivedAt.UTC()
	if receivedAt.IsZero() {
		receivedAt = now
	}
	record := &inboxEventRecord{
		ID:               id,
		ExternalEventID:  strings.TrimSpace(event.ExternalEventID),
		EventType:        string(event.EventType),
		Status:           string(status),
		ReceivedAt:       receivedAt,
		SourceTimestamp:  event.SourceTimestamp.UTC(),
		AttemptCount:     event.AttemptCount,
		LastErrorMessage: event.LastErrorMessage,
		MessageID:        strings.TrimSpace(event.MessageID),
		ReplyToken:       strings.TrimSpace(event.ReplyToken),
		QuoteToken:       strings.TrimSpace(event.QuoteToken),
		Text:             event.Text,
		SenderID:         strings.TrimSpace(event.SenderID),
		GroupID:          strings.TrimSpace(event.GroupID),
		MentionsBot:      event.MentionsBot,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if event.NextTryAt != nil {
		value := event.NextTryAt.UTC()
		record.NextTryAt = &value
	} else if !status.Terminal() {
		value := receivedAt
		record.NextTryAt = &value
	}
	return record
}

var _ core.EventStore = (*EventStore)(nil)
var _ core.EventReader = (*EventStore)(nil)
