package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-inbox/core"
)

// MessageMasker blanks the stored text of a persisted message. The SQL event
// store implements it; it reports core.ErrMessageNotFound when no row with the
// given message id exists yet.
type MessageMasker interface {
	MaskMessageText(ctx context.Context, messageID string) error
}

// MaskingRetractionHandler masks message text in place of a delete. A
// retraction that arrives before its message row is persisted surfaces as a
// retryable failure so the queue defers it until the message lands.
type MaskingRetractionHandler struct {
	masker MessageMasker
	logger core.Logger
}

func NewMaskingRetractionHandler(masker MessageMasker, logger core.Logger) (*MaskingRetractionHandler, error) {
	if masker == nil {
		return nil, fmt.Errorf("dispatch: message masker is required")
	}
	return &MaskingRetractionHandler{masker: masker, logger: logger}, nil
}

func (h *MaskingRetractionHandler) HandleRetraction(ctx context.Context, messageID string) error {
	if h == nil || h.masker == nil {
		return fmt.Errorf("dispatch: retraction handler is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return fmt.Errorf("dispatch: message id is required")
	}

	err := h.masker.MaskMessageText(ctx, messageID)
	if err == nil {
		if h.logger != nil {
			h.logger.Debug("masked retracted message", "message_id", messageID)
		}
		return nil
	}
	if errors.Is(err, core.ErrMessageNotFound) {
		return goerrors.Wrap(
			err,
			goerrors.CategoryOperation,
			fmt.Sprintf("message %q not persisted yet, retraction deferred", messageID),
		).WithTextCode(core.InboxErrorRetryable)
	}
	return err
}

var _ core.RetractionHandler = (*MaskingRetractionHandler)(nil)
