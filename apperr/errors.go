// Package apperr defines the error kinds shared across the auth, device,
// and command layers, along with the HTTP status each maps to.
//
// Errors are plain wrapped errors (fmt.Errorf("...: %w", err)), matching
// the teacher's style; apperr only adds a small sentinel-kind vocabulary
// so handlers can classify an error without string-matching its message.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the purpose of choosing an HTTP status and
// a canonical, user-facing message.
type Kind int

// Error kinds surfaced to callers, per spec.md §7.
const (
	Internal Kind = iota
	NotAuthorized
	Unavailable
	BadRequest
	NotFound
	Conflict

	// internal-only kinds, always converted to one of the above at the
	// auth-guard/handler boundary.
	TokenExpired
	TokenInvalidSignature
	TokenBadClaims
	MfaRequired
	BadCredentials
	UserDisabled
	DeviceNotFound
	NotMqttDevice
	NoCommandTopic
	PublishFailedShunked
	PublishTimeout
)

// Error is an application error carrying a Kind and a message safe to
// return to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind, wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// HTTPStatus maps a Kind to the HTTP status code the Auth guards and HTTP
// handlers respond with. Kinds without a direct external status (the
// internal-only ones above) normalize to one of the canonical six per the
// propagation policy in spec.md §7.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotAuthorized, TokenExpired, TokenInvalidSignature, TokenBadClaims, BadCredentials, UserDisabled, MfaRequired:
		return http.StatusUnauthorized
	case Unavailable:
		return http.StatusServiceUnavailable
	case BadRequest:
		return http.StatusBadRequest
	case NotFound, DeviceNotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
