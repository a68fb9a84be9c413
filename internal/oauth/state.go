package oauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// stateBytes is the entropy of a generated state parameter.
const stateBytes = 32

// GenerateState generates a random state parameter for the authorization
// request. The state links the redirect back to the request that started it
// and protects the callback against cross-site request forgery.
//
// Returns a base64url-encoded random string.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// StateMatches compares a received state with the expected one in constant
// time. An empty expected state never matches.
func StateMatches(expected, received string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
