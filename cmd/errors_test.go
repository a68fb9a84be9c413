package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthRequiredError(t *testing.T) {
	err := &AuthRequiredError{Endpoint: "http://localhost:3000"}

	assert.Contains(t, err.Error(), "http://localhost:3000")
	assert.Contains(t, err.Error(), "deskauth login")
	assert.True(t, errors.Is(err, ErrAuthRequired))
	assert.False(t, errors.Is(err, ErrAuthFailed))
}

func TestAuthFailedError(t *testing.T) {
	cause := errors.New("state mismatch")
	err := &AuthFailedError{Endpoint: "http://localhost:3000", Reason: "Authentication timeout - please try again", Err: cause}

	assert.Equal(t, "sign-in to http://localhost:3000 failed: Authentication timeout - please try again", err.Error())
	assert.True(t, errors.Is(err, ErrAuthFailed))
	assert.True(t, errors.Is(err, cause))

	bare := &AuthFailedError{Endpoint: "x"}
	assert.Equal(t, "sign-in to x failed", bare.Error())
	assert.Nil(t, bare.Unwrap())
}
