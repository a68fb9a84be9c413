// Package logging provides subsystem-tagged logging for deskauth on top of
// Go's standard slog package.
//
// InitForCLI writes text records to an io.Writer and installs the handler as
// the slog default, so packages logging through slog directly share the same
// level and destination.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Config", "Loaded configuration from %s", path)
//	logging.Error("Session", err, "Failed to clear credential")
//
// Token values must never be passed to this package.
package logging
