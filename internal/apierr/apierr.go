// Package apierr defines the HTTP-facing error taxonomy surfaced by the
// management API: Internal, Unavailable, NotFound, BadRequest, Conflict
// (the 409 used for an already-existing user) and Unauthorized. Internal failures that only ever become a
// Deployment's Error(reason) state (BuildError, LoadError, PortExhausted,
// DbProvisionError) are plain errors, not apierr.Errors — they never reach
// an HTTP response directly.
package apierr

import "net/http"

// Error is a status-carrying error returned by admission-time operations.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func NotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Message: msg}
}

func BadRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

func Unavailable(msg string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Message: msg}
}

func Internal(msg string) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Status: http.StatusConflict, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: msg}
}

// As unwraps err into an *Error if it is one, reporting ok=false otherwise.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
