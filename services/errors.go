package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanazindustrial/PROFGINE-sub004/services/orchestrator"
	"github.com/sanazindustrial/PROFGINE-sub004/services/providers"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCanceled     ErrorType = "canceled"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	ErrInvalidInput       = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrUnknownProvider    = NewDomainError(ErrorTypeValidation, "unknown provider", nil)
	ErrInvalidConfig      = NewDomainError(ErrorTypeValidation, "invalid orchestrator configuration", nil)
	ErrUnauthorized       = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrForbidden          = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrConfigNotFound     = NewDomainError(ErrorTypeNotFound, "no stored configuration", nil)
	ErrPersistenceOff     = NewDomainError(ErrorTypeNotFound, "configuration persistence is not enabled", nil)
	ErrInternal           = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrNoProvider         = NewDomainError(ErrorTypeUnavailable, "no AI provider is available", nil)
	ErrAllProvidersFailed = NewDomainError(ErrorTypeUnavailable, "all AI providers failed", nil)
	ErrProviderDown       = NewDomainError(ErrorTypeUnavailable, "AI provider is not configured", nil)
	ErrProviderError      = NewDomainError(ErrorTypeExternal, "AI provider returned an error", nil)
)

// FromDispatchError translates orchestrator and adapter errors into domain errors
func FromDispatchError(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	if failed, ok := orchestrator.IsAllProvidersFailed(err); ok {
		return NewDomainError(ErrorTypeUnavailable, ErrAllProvidersFailed.Message, err).
			WithDetail("attempts", failed.Reasons()).
			WithDetail("strict", failed.Strict)
	}

	switch {
	case errors.Is(err, orchestrator.ErrNoProviderAvailable):
		return NewDomainError(ErrorTypeUnavailable, ErrNoProvider.Message, err)

	case errors.Is(err, context.Canceled):
		return NewDomainError(ErrorTypeCanceled, "request cancelled", err)

	case errors.Is(err, context.DeadlineExceeded):
		return NewDomainError(ErrorTypeTimeout, "request timed out", err)

	case errors.Is(err, providers.ErrProviderNotFound):
		return NewDomainError(ErrorTypeValidation, ErrUnknownProvider.Message, err)

	case errors.Is(err, orchestrator.ErrUnknownProvider):
		return NewDomainError(ErrorTypeValidation, ErrInvalidConfig.Message, err)
	}

	provErr, ok := providers.AsProviderError(err)
	if !ok {
		return WrapInternal("dispatch failed", err)
	}

	switch {
	case errors.Is(provErr, providers.ErrProviderUnavailable):
		return NewDomainError(ErrorTypeUnavailable,
			fmt.Sprintf("AI provider %q is not configured", provErr.Provider), err).
			WithDetail("provider", provErr.Provider)

	default:
		domainErr := NewDomainError(ErrorTypeExternal,
			fmt.Sprintf("AI provider %q failed: %s", provErr.Provider, provErr.Message), err).
			WithDetail("provider", provErr.Provider).
			WithDetail("code", provErr.Code)
		if provErr.StatusCode != 0 {
			domainErr.WithDetail("status_code", provErr.StatusCode)
		}
		return domainErr
	}
}

// Error type checking helper functions

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool { return hasType(err, ErrorTypeExternal) }

// IsUnavailableError checks if no provider could serve the request
func IsUnavailableError(err error) bool { return hasType(err, ErrorTypeUnavailable) }

// IsTimeoutError checks if the request ran out of time
func IsTimeoutError(err error) bool { return hasType(err, ErrorTypeTimeout) }

// IsCanceledError checks if the caller went away
func IsCanceledError(err error) bool { return hasType(err, ErrorTypeCanceled) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
