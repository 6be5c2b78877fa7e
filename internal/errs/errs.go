// Package errs defines the machine-readable error taxonomy surfaced at the
// API boundary. Engine packages return these instead of bare error strings so
// clients can tell "fix the request" failures from "retry later" ones.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a short machine-readable error kind.
type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindMissingTenantKey Kind = "missing_tenant_key"
	KindInvalidTenant    Kind = "invalid_tenant"
	KindDomainRequired   Kind = "domain_required"
	KindDomainNotAllowed Kind = "domain_not_allowed"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindProviderError    Kind = "provider_error"
	KindEmptyInput       Kind = "empty_input"
	KindRateLimited      Kind = "rate_limited"
)

// Error carries a kind plus a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a kinded error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind to an underlying error.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// QuotaExceeded reports a tenant that has exhausted its monthly cycle.
type QuotaExceeded struct {
	Plan  string
	Limit int
	Used  int
}

func (e *QuotaExceeded) Error() string {
	return fmt.Sprintf("monthly quota reached for the %s plan (%d/%d seconds)", e.Plan, e.Used, e.Limit)
}

// ProviderError reports a failed upstream synthesis call after fallback.
type ProviderError struct {
	Status int
	Detail string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("synthesis provider error %d: %s", e.Status, e.Detail)
}

// KindOf extracts the kind from an error chain, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var qe *QuotaExceeded
	if errors.As(err, &qe) {
		return KindQuotaExceeded
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return KindProviderError
	}
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindUnknown
}

// HasKind reports whether err carries the given kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
