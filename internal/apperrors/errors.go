// Package apperrors implements the error taxonomy: a closed set of
// "kinds" that every layer of the pipeline maps its failures onto, so
// the transport layer can do a single switch to HTTP status codes
// instead of string-matching error messages.
package apperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the error kinds every layer of the pipeline maps onto.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuthentication  Kind = "authentication"
	KindAuthorization   Kind = "authorization"
	KindTenantIsolation Kind = "tenant_isolation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindRateLimited     Kind = "rate_limited"
	KindTransient       Kind = "transient"
	KindInternal        Kind = "internal"
)

// HTTPStatus returns the HTTP status code this kind maps to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return 400
	case KindAuthentication:
		return 401
	case KindAuthorization, KindTenantIsolation:
		return 403
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindRateLimited:
		return 429
	case KindTransient:
		return 503
	default:
		return 500
	}
}

// Error is the typed error every component in this module returns.
// Field is populated for validation errors referring to a single
// argument, matching the transport layer's error envelope.
type Error struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a kinded error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a kind to an existing error, preserving it as the cause
// via errors.Wrap (github.com/pkg/errors) so stack traces survive the
// retry/circuit-breaker layers that re-wrap adapter failures.
func Wrap(kind Kind, code string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: cause.Error(), cause: errors.Wrap(cause, string(kind))}
}

// WithField returns a copy of e with Field set, for validation errors
// that name the offending argument.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// Validation is a convenience constructor for the most common kind.
func Validation(field, message string) *Error {
	return New(KindValidation, "FR-VALIDATION-001", message).WithField(field)
}

// NotFound is a convenience constructor.
func NotFound(message string) *Error {
	return New(KindNotFound, "FR-NOTFOUND-001", message)
}

// TenantIsolation is a convenience constructor for the adapter-level
// cross-tenant mismatch error.
func TenantIsolation(message string) *Error {
	return New(KindTenantIsolation, "FR-TENANT-001", message)
}

// Authorization is a convenience constructor.
func Authorization(message string) *Error {
	return New(KindAuthorization, "FR-AUTH-003", message)
}

// As reports whether err is (or wraps) an *Error, mirroring errors.As.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf extracts the Kind of err, defaulting to KindInternal for
// errors that never passed through this package.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
