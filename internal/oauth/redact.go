package oauth

import (
	"fmt"
	"log/slog"
)

const redacted = "[REDACTED]"

// String implements fmt.Stringer without revealing token values.
func (t TokenResponse) String() string {
	return fmt.Sprintf("TokenResponse{AccessToken: %s, RefreshToken: %s}",
		redactIfSet(t.AccessToken), redactIfSet(t.RefreshToken))
}

// GoString implements fmt.GoStringer for %#v, also redacted.
func (t TokenResponse) GoString() string {
	return "oauth." + t.String()
}

// LogValue implements slog.LogValuer. Only the presence of each token is logged.
func (t TokenResponse) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("has_access_token", t.AccessToken != ""),
		slog.Bool("has_refresh_token", t.RefreshToken != ""),
	)
}

func redactIfSet(v string) string {
	if v == "" {
		return `""`
	}
	return redacted
}
