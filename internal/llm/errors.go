package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for gateway operations.
var (
	// ErrFallbackExhausted indicates every candidate in a tier chain
	// was tried or the per-query budget ran out.
	ErrFallbackExhausted = errors.New("fallback cascade exhausted")

	// ErrNoProviders indicates the tier chain is empty or none of its
	// providers are configured.
	ErrNoProviders = errors.New("no providers configured for tier")
)

// ErrorKind categorizes provider failures for the fallback cascade.
type ErrorKind string

const (
	// KindTransient covers quota, timeout, and temporary
	// unavailability. The cascade moves on to the next candidate.
	KindTransient ErrorKind = "transient"

	// KindPermanent covers auth and invalid-request failures. The
	// cascade still moves on, but the breaker records the failure so
	// the candidate is skipped on subsequent queries.
	KindPermanent ErrorKind = "permanent"
)

// ProviderError wraps a provider failure with its classification and
// the candidate that produced it.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s/%s: %v", e.Kind, e.Provider, e.Model, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ClassifyProviderError determines whether a provider failure is worth
// retrying on another candidate. Unknown failures are treated as
// transient so a flaky provider does not poison the whole cascade.
func ClassifyProviderError(err error) ErrorKind {
	if err == nil {
		return KindTransient
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	errStr := strings.ToLower(err.Error())

	// Auth patterns.
	if strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "invalid api key") ||
		strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "permission") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") {
		return KindPermanent
	}

	// Invalid-request patterns.
	if strings.Contains(errStr, "invalid argument") ||
		strings.Contains(errStr, "invalid request") ||
		strings.Contains(errStr, "bad request") ||
		strings.Contains(errStr, "400") {
		return KindPermanent
	}

	// Quota / rate limit patterns.
	if strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return KindTransient
	}

	// Timeout patterns.
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline") {
		return KindTransient
	}

	// Availability patterns.
	if strings.Contains(errStr, "unavailable") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "server error") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return KindTransient
	}

	return KindTransient
}

// wrapProviderError attaches classification and candidate identity.
func wrapProviderError(candidate Candidate, err error) *ProviderError {
	return &ProviderError{
		Kind:     ClassifyProviderError(err),
		Provider: candidate.Provider,
		Model:    candidate.Model,
		Cause:    err,
	}
}
