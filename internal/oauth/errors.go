package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrMalformedResponse is wrapped by errors caused by a response body that
// could not be decoded.
var ErrMalformedResponse = errors.New("malformed response body")

// TokenExchangeError is returned when the token endpoint rejects the
// authorization code or answers with an unusable body.
type TokenExchangeError struct {
	// StatusCode is the HTTP status, or 0 when the body was the problem.
	StatusCode int

	// ErrorCode and Description carry the provider's error and error_description.
	ErrorCode   string
	Description string

	Err error
}

// ProviderMessage returns the most descriptive text the provider sent.
func (e *TokenExchangeError) ProviderMessage() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.ErrorCode != "":
		return e.ErrorCode
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "unknown error"
	}
}

// Error implements the error interface.
func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.ProviderMessage())
	}
	return fmt.Sprintf("token exchange failed: %s", e.ProviderMessage())
}

// Unwrap returns the underlying error.
func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// UserInfoError is returned when the userinfo endpoint fails.
type UserInfoError struct {
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *UserInfoError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("user info request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("user info request failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *UserInfoError) Unwrap() error {
	return e.Err
}

// IntrospectionError is returned when the introspection endpoint answers
// with a failure status or an undecodable body.
type IntrospectionError struct {
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *IntrospectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token introspection failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("token introspection failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *IntrospectionError) Unwrap() error {
	return e.Err
}

// StatusError is returned by backend calls that have no dedicated error type
// when the response status is not 2xx.
type StatusError struct {
	Op         string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed with status %d", e.Op, e.StatusCode)
}

// NetworkError is a transport failure on a bounded-timeout call.
type NetworkError struct {
	Op string

	// Timeout is true when the request was cut off by its deadline, false
	// when the backend could not be reached at all.
	Timeout bool

	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request took too long: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
}

// Unwrap returns the transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a transport failure.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// classifyTransportError wraps a failed round trip. Cancellation by the
// caller is returned as is.
func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}

	return &NetworkError{Op: op, Timeout: timeout, Err: err}
}
