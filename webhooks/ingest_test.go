package webhooks

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-inbox/core"
)

const sampleCallback = `{
  "destination": "bot_1",
  "events": [
    {
      "type": "message",
      "webhookEventId": "evt_1",
      "timestamp": 1754042400000,
      "replyToken": "reply_1",
      "source": {"type": "group", "userId": "usr_1", "groupId": "grp_1"},
      "message": {
        "id": "msg_1",
        "type": "text",
        "text": "hello",
        "quoteToken": "quote_1",
        "mention": {"mentionees": [{"type": "user", "isSelf": true}]}
      }
    },
    {
      "type": "unsend",
      "webhookEventId": "evt_2",
      "timestamp": 1754042401000,
      "source": {"type": "user", "userId": "usr_2"},
      "unsend": {"messageId": "msg_1"}
    },
    {
      "type": "follow",
      "webhookEventId": "evt_3",
      "timestamp": 1754042402000
    },
    {
      "type": "message",
      "timestamp": 1754042403000
    }
  ]
}`

func TestParseCallback(t *testing.T) {
	events, err := ParseCallback([]byte(sampleCallback))
	if err != nil {
		t.Fatalf("parse callback: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events (row without id skipped), got %d", len(events))
	}

	message := events[0]
	if message.ExternalEventID != "evt_1" || message.EventType != core.EventTypeMessage {
		t.Fatalf("unexpected message event %+v", message)
	}
	if message.MessageID != "msg_1" || message.Text != "hello" {
		t.Fatalf("expected message payload mapped, got %+v", message)
	}
	if message.ReplyToken != "reply_1" || message.QuoteToken != "quote_1" {
		t.Fatalf("expected tokens mapped, got %+v", message)
	}
	if message.SenderID != "usr_1" || message.GroupID != "grp_1" {
		t.Fatalf("expected source mapped, got %+v", message)
	}
	if !message.MentionsBot {
		t.Fatalf("expected self mention flagged")
	}
	if !message.SourceTimestamp.Equal(time.UnixMilli(1754042400000).UTC()) {
		t.Fatalf("unexpected source timestamp %s", message.SourceTimestamp)
	}

	unsend := events[1]
	if unsend.EventType != core.EventTypeUnsend || unsend.MessageID != "msg_1" {
		t.Fatalf("unexpected unsend event %+v", unsend)
	}

	if events[2].EventType != core.EventTypeOther {
		t.Fatalf("expected unknown type normalized to other, got %s", events[2].EventType)
	}
}

func TestParseCallback_RejectsBadInput(t *testing.T) {
	if _, err := ParseCallback(nil); err == nil {
		t.Fatalf("expected error for empty body")
	}
	if _, err := ParseCallback([]byte("{")); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

type stubInsertStore struct {
	insertErr error
	inserted  int
	batches   [][]core.Event
}

func (s *stubInsertStore) InsertBatch(_ context.Context, events []core.Event) (int, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.batches = append(s.batches, events)
	return s.inserted, nil
}

func (s *stubInsertStore) FetchDue(context.Context, int, time.Time) ([]core.Event, error) {
	return nil, nil
}

func (s *stubInsertStore) Claim(context.Context, string, time.Time, time.Duration) (bool, error) {
	return false, nil
}

func (s *stubInsertStore) MarkDone(context.Context, string) error { return nil }

func (s *stubInsertStore) MarkIgnored(context.Context, string, string) error { return nil }

func (s *stubInsertStore) MarkRetryableFailure(context.Context, string, string, time.Time) error {
	return nil
}

func (s *stubInsertStore) MarkTerminalFailure(context.Context, string, string) error { return nil }

func (s *stubInsertStore) HasUnsendFor(context.Context, string) (bool, error) { return false, nil }

type stubTrigger struct {
	kicks atomic.Int64
}

func (t *stubTrigger) Kick(context.Context) <-chan struct{} {
	t.kicks.Add(1)
	done := make(chan struct{})
	close(done)
	return done
}

type stubVerifier struct {
	err error
}

func (v stubVerifier) Verify([]byte, string) error { return v.err }

func TestIngestor_PersistsThenKicks(t *testing.T) {
	store := &stubInsertStore{inserted: 3}
	trigger := &stubTrigger{}
	ingestor, err := NewIngestor(store, trigger)
	if err != nil {
		t.Fatalf("build ingestor: %v", err)
	}

	inserted, err := ingestor.IngestCallback(context.Background(), []byte(sampleCallback), "")
	if err != nil {
		t.Fatalf("ingest callback: %v", err)
	}
	if inserted != 3 {
		t.Fatalf("expected 3 inserted, got %d", inserted)
	}
	if trigger.kicks.Load() != 1 {
		t.Fatalf("expected one kick after persist, got %d", trigger.kicks.Load())
	}
}

func TestIngestor_PersistFailureDoesNotKick(t *testing.T) {
	store := &stubInsertStore{insertErr: fmt.Errorf("db unavailable")}
	trigger := &stubTrigger{}
	ingestor, err := NewIngestor(store, trigger)
	if err != nil {
		t.Fatalf("build ingestor: %v", err)
	}

	if _, err := ingestor.IngestCallback(context.Background(), []byte(sampleCallback), ""); err == nil {
		t.Fatalf("expected persist failure to propagate")
	}
	if trigger.kicks.Load() != 0 {
		t.Fatalf("trigger must not fire when persist fails")
	}
}

func TestIngestor_SignatureFailureStopsIngestion(t *testing.T) {
	store := &stubInsertStore{}
	trigger := &stubTrigger{}
	ingestor, err := NewIngestor(store, trigger, WithVerifier(stubVerifier{err: fmt.Errorf("bad signature")}))
	if err != nil {
		t.Fatalf("build ingestor: %v", err)
	}

	if _, err := ingestor.IngestCallback(context.Background(), []byte(sampleCallback), "sig"); err == nil {
		t.Fatalf("expected verification failure")
	}
	if len(store.batches) != 0 {
		t.Fatalf("nothing must be persisted on a bad signature")
	}
}

func TestIngestor_EmptyBatchIsNoop(t *testing.T) {
	store := &stubInsertStore{}
	trigger := &stubTrigger{}
	ingestor, err := NewIngestor(store, trigger)
	if err != nil {
		t.Fatalf("build ingestor: %v", err)
	}
	inserted, err := ingestor.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatalf("ingest empty batch: %v", err)
	}
	if inserted != 0 || trigger.kicks.Load() != 0 {
		t.Fatalf("expected noop for empty batch")
	}
}
