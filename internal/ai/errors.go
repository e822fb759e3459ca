package ai

import (
	"errors"
	"fmt"
)

// ErrTransport marks an unreachable upstream or a non-2xx response.
var ErrTransport = errors.New("transport error")

// ProviderError is returned by Chat when the upstream call fails.
type ProviderError struct {
	Provider string
	Op       string
	// Status is the upstream HTTP status, zero if no response was received.
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	msg := "Error in " + e.Provider
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StatusError builds the error for a non-2xx upstream response.
func StatusError(provider, op string, status int, body string) *ProviderError {
	err := fmt.Errorf("%w: %s API returned %d", ErrTransport, provider, status)
	if body != "" {
		err = fmt.Errorf("%w: %s", err, abbreviate(body, 500))
	}
	return &ProviderError{Provider: provider, Op: op, Status: status, Err: err}
}

// TransportError wraps a failure that happened before a response arrived.
func TransportError(provider, op string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: fmt.Errorf("%w: %w", ErrTransport, cause)}
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
