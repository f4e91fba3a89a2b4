package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable is returned when the backend credential is missing or implausible
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrUpstream is returned when the backend answers with a non-success status or cannot be reached
	ErrUpstream = errors.New("upstream error")

	// ErrEmptyResponse is returned when the backend reports success but sends no body
	ErrEmptyResponse = errors.New("empty response")
)

// Error codes carried by ProviderError
const (
	CodeUnavailable   = "PROVIDER_UNAVAILABLE"
	CodeUpstream      = "UPSTREAM_ERROR"
	CodeEmptyResponse = "EMPTY_RESPONSE"
	CodeRequest       = "REQUEST_ERROR"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (0 when no response was received)
	StatusCode int

	// Body is the backend-provided error body, kept for diagnostics
	Body string

	// Retryable indicates if another attempt could succeed
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := e.Provider + ": " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is maps the error code onto the package sentinels
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrProviderUnavailable:
		return e.Code == CodeUnavailable
	case ErrUpstream:
		return e.Code == CodeUpstream || e.Code == CodeRequest
	case ErrEmptyResponse:
		return e.Code == CodeEmptyResponse
	}
	return false
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// NewUnavailableError reports a missing or implausible credential
func NewUnavailableError(provider string) *ProviderError {
	return NewProviderError(provider, CodeUnavailable, "provider is not configured", 0, false, nil)
}

// NewUpstreamError reports a non-success backend status
func NewUpstreamError(provider string, statusCode int, message, body string) *ProviderError {
	err := NewProviderError(provider, CodeUpstream, message, statusCode, statusCode >= 500 || statusCode == 429, nil)
	err.Body = body
	return err
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// AsProviderError extracts a ProviderError from an error chain
func AsProviderError(err error) (*ProviderError, bool) {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr, true
	}
	return nil, false
}
