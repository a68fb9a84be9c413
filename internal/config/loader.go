package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"deskauth/pkg/logging"
)

// Environment variables that override the file.
const (
	EnvAPIBaseURL      = "DESKAUTH_API_BASE_URL"
	EnvClientID        = "DESKAUTH_CLIENT_ID"
	EnvCredentialsPath = "DESKAUTH_CREDENTIALS_PATH"
)

// Load reads the YAML file at path on top of the defaults, applies
// environment overrides and validates the result. An empty path selects
// DefaultConfigPath. A missing file is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config file found at %s, using defaults", path)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	}

	applyEnv(&config)

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load environment file: %w", err)
	}
	logging.Debug("ConfigLoader", "Loaded environment from %v", existing)
	return nil
}

func applyEnv(config *Config) {
	if v := os.Getenv(EnvAPIBaseURL); v != "" {
		config.APIBaseURL = v
	}
	if v := os.Getenv(EnvClientID); v != "" {
		config.ClientID = v
	}
	if v := os.Getenv(EnvCredentialsPath); v != "" {
		config.CredentialsPath = v
	}
}
