package llm

import (
	"errors"
	"fmt"
)

// ErrNoProviders is returned when no cloud provider is configured or every
// candidate provider's breaker is open.
var ErrNoProviders = errors.New("no usable LLM providers")

// ErrBreakerOpen is returned by a breaker that is rejecting calls.
var ErrBreakerOpen = errors.New("circuit breaker open")

// CallError wraps a vendor call failure with the provider it came from.
// Timeouts, HTTP errors, auth errors, and quota errors all surface as this
// one kind; all of them count against the provider's circuit breaker.
type CallError struct {
	Provider string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llm call failed (provider %s): %v", e.Provider, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }
