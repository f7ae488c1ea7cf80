package providers

import (
	"encoding/json"
	"fmt"
	"time"
)

// TransportError represents a transport-level failure: connection refused,
// DNS failure, TLS handshake, or a broken connection before any response
// arrived. Maps to HTTP 502 at the gateway.
type TransportError struct {
	// Provider is the name of the provider that could not be reached
	Provider string

	// Cause is the underlying network error
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %q unreachable: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents a request timeout.
// This occurs when an upstream call exceeds the request deadline.
// Maps to HTTP 504 at the gateway.
type TimeoutError struct {
	// Provider is the name of the provider where the timeout occurred
	Provider string

	// Timeout is the configured timeout duration
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %q request timeout after %s", e.Provider, e.Timeout)
}

// UpstreamError represents a non-2xx upstream response on a code path
// that cannot return a Result, such as streaming setup. It carries the
// upstream status and the already-normalized error body so the gateway
// can pass both through.
type UpstreamError struct {
	// Provider is the provider type that returned the error
	Provider string

	// Status is the upstream HTTP status code
	Status int

	// Body is the normalized OpenAI-shape error envelope
	Body json.RawMessage
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %q returned status %d", e.Provider, e.Status)
}

// ParseError represents a response parsing failure.
// This occurs when the provider returns a malformed response.
type ParseError struct {
	// Provider is the name of the provider that returned the malformed response
	Provider string

	// RawResponse is the raw response body that failed to parse
	RawResponse string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q response parse error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// StreamError represents an error that occurred during streaming.
// This is sent through the stream channel to indicate an error.
type StreamError struct {
	// Provider is the name of the provider where the error occurred
	Provider string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %q stream error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %q stream error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *StreamError) Unwrap() error {
	return e.Cause
}
