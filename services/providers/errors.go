package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderDisabled is returned when a provider's flag or
	// availability check fails before any network attempt. It is never
	// counted against the circuit breaker.
	ErrProviderDisabled = errors.New("provider disabled")

	// ErrProviderNotConfigured is returned when no factory is registered
	// for a requested provider kind
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrEmptyConversation is returned when a request carries no messages
	ErrEmptyConversation = errors.New("conversation has no messages")
)

// ProviderError represents a failed provider call (network error, non-2xx
// response, malformed payload). It carries the provider name and the
// underlying cause, and counts against the provider's circuit breaker.
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewDisabledError creates a ProviderError wrapping ErrProviderDisabled.
// errors.Is(err, ErrProviderDisabled) holds for the result.
func NewDisabledError(provider string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  "provider is disabled",
		Cause:    ErrProviderDisabled,
	}
}

// IsDisabled reports whether an error stems from a disabled provider
func IsDisabled(err error) bool {
	return errors.Is(err, ErrProviderDisabled)
}
