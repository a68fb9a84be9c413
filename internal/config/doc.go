// Package config loads deskauth configuration.
//
// Configuration is read from a single YAML file, by default
// ~/.config/deskauth/config.yaml, decoded on top of the built-in defaults.
// A missing file is not an error. Durations use Go syntax ("10s", "5m").
//
// Example:
//
//	apiBaseUrl: https://api.example.com
//	clientId: oa-coder-desktop
//	scopes: [profile]
//	requestTimeout: 10s
//	callback:
//	  portLow: 8000
//	  portHigh: 8020
//	  timeout: 10m
//	  shutdownGrace: 5s
//	usageRetry:
//	  maxAttempts: 3
//	  delay: 1s
//
// The environment variables DESKAUTH_API_BASE_URL, DESKAUTH_CLIENT_ID and
// DESKAUTH_CREDENTIALS_PATH override the file. LoadDotEnv can populate them
// from a .env file first.
package config
