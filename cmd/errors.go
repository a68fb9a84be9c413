package cmd

import (
	"errors"
	"fmt"
)

// ErrAuthRequired is the sentinel for commands that need a signed-in session.
var ErrAuthRequired = errors.New("authentication required")

// ErrAuthFailed is the sentinel for a sign-in that did not complete.
var ErrAuthFailed = errors.New("authentication failed")

// AuthRequiredError is returned when a command needs a session and none is stored.
type AuthRequiredError struct {
	Endpoint string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("not signed in to %s. Run 'deskauth login' first", e.Endpoint)
}

// Is allows errors.Is to match AuthRequiredError against ErrAuthRequired.
func (e *AuthRequiredError) Is(target error) bool {
	return target == ErrAuthRequired
}

// AuthFailedError wraps the reason a sign-in failed.
type AuthFailedError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *AuthFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("sign-in to %s failed: %s", e.Endpoint, e.Reason)
	}
	return fmt.Sprintf("sign-in to %s failed", e.Endpoint)
}

// Unwrap returns the underlying error.
func (e *AuthFailedError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match AuthFailedError against ErrAuthFailed.
func (e *AuthFailedError) Is(target error) bool {
	return target == ErrAuthFailed
}
