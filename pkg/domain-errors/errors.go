// Package domainerrors provides coded errors shared across services and
// transports. Services return these so HTTP handlers and the event router can
// map failures to client-visible responses without string matching.
package domainerrors

import "errors"

// Code identifies the class of a domain error.
type Code string

const (
	// Realtime event pipeline codes.
	CodeAuthRejected      Code = "auth_rejected"
	CodeMalformedPayload  Code = "malformed_payload"
	CodeRateLimitExceeded Code = "rate_limit_exceeded"
	CodeForbidden         Code = "forbidden"

	// Notification delivery codes.
	CodeDeliveryFailed Code = "delivery_failed"
	CodeDeadLettered   Code = "dead_lettered"

	// HTTP-facing codes for the admin surface.
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeInternal     Code = "internal_error"
)

// Error is a coded domain error with a human-readable message.
type Error struct {
	Code    Code
	Message string
}

// New constructs a domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Is lets errors.Is match two domain errors by code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the code from err, or CodeInternal if err is not a domain
// error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
