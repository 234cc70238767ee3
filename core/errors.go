package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	InboxErrorBadInput      = "INBOX_BAD_INPUT"
	InboxErrorEventNotFound = "INBOX_EVENT_NOT_FOUND"
	InboxErrorRateLimited   = "INBOX_RATE_LIMITED"
	InboxErrorRetryable     = "INBOX_FAILURE_RETRYABLE"
	InboxErrorTerminal      = "INBOX_FAILURE_TERMINAL"
	InboxErrorInternal      = "INBOX_INTERNAL_ERROR"
)

// ErrMessageNotFound signals that a retraction targeted a message row that has
// not been persisted yet; callers treat it as retryable so the retraction is
// deferred until the message event itself arrives.
var ErrMessageNotFound = errors.New("core: message not found")

// RetryableError tags a failure as safe to retry with backoff.
func RetryableError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithTextCode(InboxErrorRetryable)
}

// TerminalError tags a failure as unrecoverable: no further attempts.
func TerminalError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithTextCode(InboxErrorTerminal)
}

// PlatformCallError classifies an outbound messaging-platform failure exactly
// once, at the boundary where the HTTP status is known. Status 0 models a
// transport failure with no response.
func PlatformCallError(status int, message string) *goerrors.Error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "platform call failed"
	}
	classified := goerrors.New(message, platformCategory(status)).
		WithCode(status)
	if terminalStatus(status) {
		return classified.WithTextCode(InboxErrorTerminal)
	}
	return classified.WithTextCode(InboxErrorRetryable)
}

// IsTerminal reports whether a dispatch failure must not be retried. Only the
// retry policy consults this; everything below it propagates errors untouched.
// Untagged errors default to retryable.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	switch strings.TrimSpace(rich.TextCode) {
	case InboxErrorTerminal:
		return true
	case InboxErrorRetryable:
		return false
	}
	return terminalStatus(rich.Code)
}

func terminalStatus(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	return status != http.StatusRequestTimeout
}

func platformCategory(status int) goerrors.Category {
	switch {
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryInternal
	}
}
