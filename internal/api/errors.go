package api

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is matched by every 401 response regardless of endpoint
var ErrUnauthorized = errors.New("unauthorized")

// UnauthorizedError is returned when the backend rejected the session.
// The session has already been cleared by the time the caller sees it.
type UnauthorizedError struct {
	Path string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: session expired, run `mailjob login`"
}

func (e *UnauthorizedError) Unwrap() error {
	return ErrUnauthorized
}

// RemoteError is any other non-2xx response
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// ProtocolError is a 2xx response whose body did not have the expected shape
type ProtocolError struct {
	Path string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected response from %s: %v", e.Path, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		return 401
	}
	return 0
}
