package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"deskauth/cmd"
)

func TestVersion(t *testing.T) {
	assert.Equal(t, "dev", version)

	cmd.SetVersion(version)
	assert.Equal(t, "dev", cmd.GetVersion())
}
