package api

import (
	"errors"
	"fmt"
)

// NetworkError means no response reached the client: dial failure, timeout,
// cancelled context.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a response with a status outside 2xx. Message is the body's
// "error" field when the backend supplied one.
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// DecodeError is a response whose body was not valid JSON for the expected
// shape. Status is kept for diagnostics only.
type DecodeError struct {
	Method string
	Path   string
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s %s: decode response (status %d): %v", e.Method, e.Path, e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is or wraps a *NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsDecode reports whether err is or wraps a *DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsHTTP reports whether err is or wraps an *HTTPError.
func IsHTTP(err error) bool {
	_, ok := AsHTTP(err)
	return ok
}

// AsHTTP returns the *HTTPError in err's chain, if any.
func AsHTTP(err error) (*HTTPError, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// ServerMessage returns the backend-supplied error message in err, or
// fallback when err is not an HTTP error or the backend sent none.
func ServerMessage(err error, fallback string) string {
	if he, ok := AsHTTP(err); ok && he.Message != "" {
		return he.Message
	}
	return fallback
}
