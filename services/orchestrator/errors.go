package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProviderAvailable is returned when the candidate order is empty
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrAllProvidersFailed is returned when every candidate was skipped or failed
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrUnknownProvider is returned by strict validation for names missing from the registry
	ErrUnknownProvider = errors.New("unknown provider")
)

// Attempt records why a single candidate did not produce a stream
type Attempt struct {
	Provider string
	Err      error
}

// AllProvidersFailedError carries the per-provider reasons of a failed dispatch
type AllProvidersFailedError struct {
	// Attempts lists the providers that were called and failed, in call order
	Attempts []Attempt

	// Skipped lists candidates passed over because they were unavailable
	Skipped []string

	// Strict is set when dispatch stopped after the first failure
	Strict bool
}

// Error implements the error interface
func (e *AllProvidersFailedError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrAllProvidersFailed.Error())
	if e.Strict {
		sb.WriteString(" (fallback disabled)")
	}

	parts := make([]string, 0, len(e.Attempts)+len(e.Skipped))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	for _, name := range e.Skipped {
		parts = append(parts, name+": skipped, unavailable")
	}
	if len(parts) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(parts, "; "))
	}
	return sb.String()
}

// Is matches ErrAllProvidersFailed
func (e *AllProvidersFailedError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

// Unwrap exposes the recorded attempt errors to errors.Is and errors.As
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Reasons maps every recorded provider to a human-readable reason
func (e *AllProvidersFailedError) Reasons() map[string]string {
	reasons := make(map[string]string, len(e.Attempts)+len(e.Skipped))
	for _, name := range e.Skipped {
		reasons[name] = "unavailable"
	}
	for _, a := range e.Attempts {
		reasons[a.Provider] = a.Err.Error()
	}
	return reasons
}

// IsAllProvidersFailed extracts the detailed failure from an error chain
func IsAllProvidersFailed(err error) (*AllProvidersFailedError, bool) {
	var failed *AllProvidersFailedError
	if errors.As(err, &failed) {
		return failed, true
	}
	return nil, false
}
