package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/goliatone/go-inbox/core"
)

type stubMasker struct {
	masked []string
	err    error
}

func (s *stubMasker) MaskMessageText(_ context.Context, messageID string) error {
	s.masked = append(s.masked, messageID)
	return s.err
}

func TestMaskingRetractionHandler_MasksMessage(t *testing.T) {
	masker := &stubMasker{}
	handler, err := NewMaskingRetractionHandler(masker, nil)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}

	if err := handler.HandleRetraction(context.Background(), "msg_1"); err != nil {
		t.Fatalf("handle retraction: %v", err)
	}
	if len(masker.masked) != 1 || masker.masked[0] != "msg_1" {
		t.Fatalf("expected mask of msg_1, got %v", masker.masked)
	}
}

func TestMaskingRetractionHandler_MissingMessageIsRetryable(t *testing.T) {
	masker := &stubMasker{err: fmt.Errorf("%w: message id %q", core.ErrMessageNotFound, "msg_2")}
	handler, err := NewMaskingRetractionHandler(masker, nil)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}

	retErr := handler.HandleRetraction(context.Background(), "msg_2")
	if retErr == nil {
		t.Fatalf("expected error for missing message")
	}
	if core.IsTerminal(retErr) {
		t.Fatalf("expected retryable classification, got terminal: %v", retErr)
	}
	if !errors.Is(retErr, core.ErrMessageNotFound) {
		t.Fatalf("expected wrapped not-found cause, got %v", retErr)
	}
}

func TestMaskingRetractionHandler_OtherErrorsPassThrough(t *testing.T) {
	boom := fmt.Errorf("disk full")
	masker := &stubMasker{err: boom}
	handler, err := NewMaskingRetractionHandler(masker, nil)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}

	if retErr := handler.HandleRetraction(context.Background(), "msg_3"); !errors.Is(retErr, boom) {
		t.Fatalf("expected original error, got %v", retErr)
	}
}

func TestMaskingRetractionHandler_RequiresMessageID(t *testing.T) {
	handler, err := NewMaskingRetractionHandler(&stubMasker{}, nil)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	if err := handler.HandleRetraction(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for blank message id")
	}
}
