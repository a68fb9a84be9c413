package config

import "time"

// Config is the top-level configuration of deskauth.
type Config struct {
	// APIBaseURL is the root of the identity provider and backend API.
	APIBaseURL string `yaml:"apiBaseUrl"`

	// ClientID identifies this application to the provider.
	ClientID string `yaml:"clientId"`

	// Scopes requested during sign-in.
	Scopes []string `yaml:"scopes,omitempty"`

	// CredentialsPath is where the session credential is persisted.
	CredentialsPath string `yaml:"credentialsPath,omitempty"`

	// RequestTimeout bounds every backend call.
	RequestTimeout time.Duration `yaml:"requestTimeout,omitempty"`

	Callback   CallbackConfig `yaml:"callback,omitempty"`
	UsageRetry RetryConfig    `yaml:"usageRetry,omitempty"`
}

// CallbackConfig configures the loopback redirect listener.
type CallbackConfig struct {
	PortLow       int           `yaml:"portLow,omitempty"`
	PortHigh      int           `yaml:"portHigh,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`       // How long a sign-in may wait for the redirect
	ShutdownGrace time.Duration `yaml:"shutdownGrace,omitempty"` // Delay before the listener closes after a redirect
}

// RetryConfig configures a fixed-delay retry.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts,omitempty"`
	Delay       time.Duration `yaml:"delay,omitempty"`
}
