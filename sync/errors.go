// ABOUTME: Typed error taxonomy for the calendar sync engine
// ABOUTME: Classifies provider failures into a closed set of retryable kinds
package sync

import (
	"errors"
	"fmt"

	"habitly/models"
)

// ErrorKind is the closed classification every provider failure must map to
// before it reaches the orchestrator. The kind decides retry behavior.
type ErrorKind int

const (
	// KindUnknown is the zero value; treated as non-retryable.
	KindUnknown ErrorKind = iota

	// KindNotConnected: no calendar link for the user. Fail fast, no
	// provider call is attempted.
	KindNotConnected

	// KindAuthExpired: access token past its buffer. Triggers a refresh and
	// does not consume a retry attempt.
	KindAuthExpired

	// KindAuthInvalid: refresh token rejected. Fatal for the user/provider
	// pair until the user re-authorizes.
	KindAuthInvalid

	// KindProviderUnavailable: transient network or 5xx failure. Retried
	// with linear backoff up to the attempt cap.
	KindProviderUnavailable

	// KindValidation: malformed event payload. The item is skipped, the
	// pass continues.
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotConnected:
		return "not_connected"
	case KindAuthExpired:
		return "auth_expired"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindValidation:
		return "validation_error"
	default:
		return "unknown"
	}
}

// Error carries the classification plus structured context. Adapters create
// these; the orchestrator switches on Kind, never on message text.
type Error struct {
	Kind     ErrorKind
	Provider models.Provider
	Op       string
	ItemID   int64
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Provider != "" {
		msg = string(e.Provider) + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification from an error chain. Unclassified
// errors report KindUnknown.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func newError(kind ErrorKind, provider models.Provider, op string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Op: op, Err: err}
}
