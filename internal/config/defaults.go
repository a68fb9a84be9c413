package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultAPIBaseURL is the backend used when none is configured.
	DefaultAPIBaseURL = "http://localhost:3000"

	// DefaultClientID is the public client identifier of the desktop app.
	DefaultClientID = "oa-coder-desktop"

	userConfigDir       = ".config/deskauth"
	configFileName      = "config.yaml"
	credentialsFileName = "credentials.json"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIBaseURL:      DefaultAPIBaseURL,
		ClientID:        DefaultClientID,
		Scopes:          []string{"profile"},
		CredentialsPath: defaultPath(credentialsFileName),
		RequestTimeout:  10 * time.Second,
		Callback: CallbackConfig{
			PortLow:       8000,
			PortHigh:      8020,
			Timeout:       10 * time.Minute,
			ShutdownGrace: 5 * time.Second,
		},
		UsageRetry: RetryConfig{
			MaxAttempts: 3,
			Delay:       time.Second,
		},
	}
}

// DefaultConfigPath returns ~/.config/deskauth/config.yaml.
func DefaultConfigPath() string {
	return defaultPath(configFileName)
}

func defaultPath(name string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(userConfigDir, name)
	}
	return filepath.Join(homeDir, userConfigDir, name)
}
