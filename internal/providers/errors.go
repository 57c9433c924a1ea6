package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies provider failures so callers can decide between
// retrying, rewriting the prompt, or aborting the job.
type ErrorKind string

const (
	// KindTransient failures (timeouts, 429s, 5xx) are safe to retry.
	KindTransient ErrorKind = "transient"

	// KindSafetyBlock means the provider refused the content. Retrying
	// the same prompt is pointless; the prompt must be rewritten.
	KindSafetyBlock ErrorKind = "safety_block"

	// KindFatal failures (bad credentials, exhausted quota, cancelled
	// context) will not succeed on retry.
	KindFatal ErrorKind = "fatal"
)

// Error is a classified provider failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a classification.
func NewError(kind ErrorKind, provider, message string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: err}
}

// KindOf classifies an arbitrary error. Unclassified errors default to
// transient so they get the benefit of a retry.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindFatal
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindTransient
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsSafetyBlock reports whether err is a content refusal.
func IsSafetyBlock(err error) bool { return KindOf(err) == KindSafetyBlock }

// IsFatal reports whether err is unrecoverable.
func IsFatal(err error) bool { return KindOf(err) == KindFatal }

// classifyStatus maps an HTTP status onto an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 402 || status == 403:
		return KindFatal
	case status == 429:
		return KindTransient
	case status >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}
