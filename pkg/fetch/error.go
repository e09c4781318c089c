package fetch

import (
	"fmt"
)

// Category classifies where a fetch attempt failed.
type Category string

const (
	// CategoryConnection is a failure before any response was received
	// (DNS, TCP, TLS, timeouts).
	CategoryConnection Category = "connection"

	// CategoryHTTP is a received response with a non-success status.
	CategoryHTTP Category = "http"
)

// Error is a classified failure of one upstream connection attempt.
type Error struct {
	Category   Category
	HTTPStatus int
	Message    string

	// Err is the underlying transport error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Category == CategoryHTTP {
		return fmt.Sprintf("upstream http %d: %s", e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("upstream connection: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConnectionError builds a connection category error.
func ConnectionError(err error) *Error {
	return &Error{Category: CategoryConnection, Message: err.Error(), Err: err}
}

// HTTPError builds an http category error.
func HTTPError(status int, message string) *Error {
	return &Error{Category: CategoryHTTP, HTTPStatus: status, Message: message}
}
