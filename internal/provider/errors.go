package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure for retry handling.
type ErrorKind string

// Failure classifications. The worker maps each kind to a different item
// transition: rate_limited parks the item and opens a provider cooldown,
// transient consumes a retry, terminal dead-letters the item immediately.
const (
	KindRateLimited ErrorKind = "rate_limited"
	KindTransient   ErrorKind = "transient"
	KindTerminal    ErrorKind = "terminal"
)

// ErrUnknownProvider indicates an item routed to a provider with no
// registered client.
var ErrUnknownProvider = errors.New("no client registered for provider")

// ProviderError wraps a provider failure with its classification and an
// optional retry-after hint from the provider's response.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a classified provider error.
func NewProviderError(provider string, kind ErrorKind, retryAfter time.Duration, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		RetryAfter: retryAfter,
		Err:        err,
	}
}

// KindOf extracts the classification from an error. Errors that are not
// ProviderError values default to transient: an unclassifiable failure is
// retried rather than dead-lettered.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// RetryAfterHint extracts the retry-after hint from an error, or zero when
// the provider gave none.
func RetryAfterHint(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
