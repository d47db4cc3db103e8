// Package errors defines the error taxonomy shared by the token engine, the
// access control gate and the real-time layer. Every error carries a stable
// identifier so clients can branch on it without parsing text.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// New returns an error that formats as the given text.
var New = errors.New

// Kind classifies an Error.
type Kind int

const (
	KindSystem Kind = iota
	KindAccessUnauthorized
	KindAccessForbidden
	KindRequestInvalid
	KindResourceNotFound
	KindResourceConflict
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindAccessUnauthorized:
		return "access_unauthorized"
	case KindAccessForbidden:
		return "access_forbidden"
	case KindRequestInvalid:
		return "request_invalid"
	case KindResourceNotFound:
		return "resource_not_found"
	case KindResourceConflict:
		return "resource_conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "system_error"
	}
}

// Stable identifiers.
const (
	IdentifierAccessUnauthorized = "ACCESS_UNAUTHORIZED"
	IdentifierAccessForbidden    = "ACCESS_FORBIDDEN"
	IdentifierAuthNotVerified    = "AUTH_NOT_VERIFIED"
	IdentifierUserNotVerified    = "USER_NOT_VERIFIED"
	IdentifierRequestInvalid     = "REQUEST_INVALID"
	IdentifierResourceNotFound   = "RESOURCE_NOT_FOUND"
	IdentifierResourceConflict   = "RESOURCE_CONFLICT"
	IdentifierSystemError        = "SYSTEM_UNEXPECTED"

	IdentifierTicketInvalid   = "TICKET_INVALID"
	IdentifierTicketExpired   = "TICKET_EXPIRED"
	IdentifierTicketMalformed = "TICKET_MALFORMED"
	IdentifierTicketMismatch  = "TICKET_MISMATCH"
	IdentifierVaultNotOwned   = "VAULT_NOT_OWNED"
	IdentifierRateLimited     = "RATE_LIMITED"
)

// StatusCodes maps each kind to its HTTP status.
var StatusCodes = map[Kind]int{
	KindSystem:             http.StatusInternalServerError,
	KindAccessUnauthorized: http.StatusUnauthorized,
	KindAccessForbidden:    http.StatusForbidden,
	KindRequestInvalid:     http.StatusBadRequest,
	KindResourceNotFound:   http.StatusNotFound,
	KindResourceConflict:   http.StatusConflict,
	KindRateLimited:        http.StatusTooManyRequests,
}

// Error is the concrete error type returned across the core.
type Error struct {
	Kind        Kind
	Identifier  string
	Description string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Identifier
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and identifier, so sentinel values can be
// compared with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Identifier == t.Identifier
}

// StatusCode returns the HTTP status for the error kind.
func (e *Error) StatusCode() int {
	if code, ok := StatusCodes[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func newError(kind Kind, identifier, format string, args ...any) *Error {
	desc := format
	if len(args) > 0 {
		desc = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Identifier: identifier, Description: desc}
}

// AccessUnauthorized reports missing or invalid credentials.
func AccessUnauthorized(identifier, format string, args ...any) *Error {
	if identifier == "" {
		identifier = IdentifierAccessUnauthorized
	}
	return newError(KindAccessUnauthorized, identifier, format, args...)
}

// AccessForbidden reports an authenticated caller that is not allowed.
func AccessForbidden(identifier, format string, args ...any) *Error {
	if identifier == "" {
		identifier = IdentifierAccessForbidden
	}
	return newError(KindAccessForbidden, identifier, format, args...)
}

// RequestInvalid reports malformed or stale input.
func RequestInvalid(identifier, format string, args ...any) *Error {
	if identifier == "" {
		identifier = IdentifierRequestInvalid
	}
	return newError(KindRequestInvalid, identifier, format, args...)
}

// ResourceNotFound reports a missing entity.
func ResourceNotFound(identifier, format string, args ...any) *Error {
	if identifier == "" {
		identifier = IdentifierResourceNotFound
	}
	return newError(KindResourceNotFound, identifier, format, args...)
}

// ResourceConflict reports a uniqueness violation.
func ResourceConflict(identifier, format string, args ...any) *Error {
	if identifier == "" {
		identifier = IdentifierResourceConflict
	}
	return newError(KindResourceConflict, identifier, format, args...)
}

// RateLimited reports a caller that exceeded its request budget.
func RateLimited(format string, args ...any) *Error {
	return newError(KindRateLimited, IdentifierRateLimited, format, args...)
}

// System wraps an unexpected internal fault.
func System(err error, format string, args ...any) *Error {
	e := newError(KindSystem, IdentifierSystemError, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of err, KindSystem for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSystem
}

// IdentifierOf returns the stable identifier of err.
func IdentifierOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Identifier
	}
	return IdentifierSystemError
}

// IsAccessError reports whether err is an unauthorized or forbidden error.
func IsAccessError(err error) bool {
	switch KindOf(err) {
	case KindAccessUnauthorized, KindAccessForbidden:
		return true
	}
	return false
}

// Response is the JSON body written for a failed HTTP request.
type Response struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	StatusCode  int    `json:"-"`
}

// ResponseFor converts err into a Response. Foreign errors become a generic
// system error without leaking their text.
func ResponseFor(err error) Response {
	var e *Error
	if !errors.As(err, &e) {
		return Response{Error: IdentifierSystemError, StatusCode: http.StatusInternalServerError}
	}
	resp := Response{Error: e.Identifier, Description: e.Description, StatusCode: e.StatusCode()}
	if e.Kind == KindSystem {
		resp.Description = ""
	}
	return resp
}
