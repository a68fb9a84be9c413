package session

import (
	"errors"
	"fmt"
	"time"

	"deskauth/internal/callback"
	"deskauth/internal/credentials"
	"deskauth/internal/oauth"
)

var (
	// ErrAuthInProgress is returned by Initiate while a sign-in is pending.
	ErrAuthInProgress = errors.New("authentication already in progress")

	// ErrNoAuthorizationCode is reported when the redirect carried neither a
	// code nor an error.
	ErrNoAuthorizationCode = errors.New("no authorization code received")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// ProviderDeclinedError is reported when the provider redirected with an
// OAuth error, for example because the user cancelled.
type ProviderDeclinedError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *ProviderDeclinedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s - %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization failed: %s", e.Code)
}

// CSRFViolationError is reported when the state returned by the provider does
// not match the pending one.
type CSRFViolationError struct{}

// Error implements the error interface.
func (e *CSRFViolationError) Error() string {
	return "state mismatch - possible CSRF attack"
}

// TimeoutError is reported when no redirect arrived in time.
type TimeoutError struct {
	After time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("authentication timed out after %s", e.After)
}

// UserMessage turns an error reported by the session into a message that can
// be shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		declined  *ProviderDeclinedError
		csrf      *CSRFViolationError
		timeout   *TimeoutError
		exchange  *oauth.TokenExchangeError
		userInfo  *oauth.UserInfoError
		network   *oauth.NetworkError
		exhausted *callback.PortExhaustionError
		bindErr   *callback.BindError
		ioErr     *credentials.IOError
	)

	switch {
	case errors.As(err, &declined):
		if declined.Description != "" {
			return "Sign-in was declined: " + declined.Description
		}
		return "Sign-in was declined: " + declined.Code
	case errors.As(err, &csrf):
		return "Sign-in was rejected because the response did not match the request. Please try again."
	case errors.As(err, &timeout):
		return "Authentication timeout - please try again"
	case errors.As(err, &network):
		if network.Timeout {
			return "Request timeout - the sign-in server took too long to respond"
		}
		return "Could not reach the sign-in server - backend may not be running"
	case errors.As(err, &exchange):
		return "Could not complete sign-in: " + exchange.ProviderMessage()
	case errors.As(err, &userInfo):
		return "Could not load your user profile. Please try again."
	case errors.As(err, &exhausted):
		return fmt.Sprintf("Could not start the sign-in listener: no free port between %d and %d", exhausted.Low, exhausted.High)
	case errors.As(err, &bindErr):
		return fmt.Sprintf("Could not start the sign-in listener on port %d", bindErr.Port)
	case errors.As(err, &ioErr):
		return "Could not access saved credentials: " + ioErr.Err.Error()
	case errors.Is(err, ErrNoAuthorizationCode):
		return "No authorization code received"
	case errors.Is(err, ErrAuthInProgress):
		return "Sign-in is already in progress"
	default:
		return "Authentication failed: " + err.Error()
	}
}
