package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"deskauth/internal/config"
	"deskauth/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the sign-in flow failed.
	ExitCodeAuthFailed = 3
)

// Persistent flags
var (
	configPath string
	debug      bool
	quiet      bool
	logLevel   string
)

// appConfig is loaded before any subcommand runs.
var appConfig config.Config

// rootCmd represents the base command for the deskauth application.
var rootCmd = &cobra.Command{
	Use:   "deskauth",
	Short: "Sign the desktop assistant in to its backend",
	Long: `deskauth signs the desktop assistant in to its backend through the
system browser. Sign-in uses the OAuth2 authorization code flow with a
short-lived listener on 127.0.0.1 that receives the provider's redirect.

The resulting session is stored in ~/.config/deskauth/credentials.json
and validated against the provider on next use.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// SetVersion sets the version for the root command.
// It is called from the main package to inject the version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "deskauth version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

// setup loads the environment and configuration and initializes logging.
func setup(cmd *cobra.Command, args []string) error {
	logging.InitForCLI(effectiveLogLevel(), logOutput(cmd))

	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	appConfig = cfg
	return nil
}

// effectiveLogLevel lets --debug and --quiet take precedence over --log-level.
func effectiveLogLevel() logging.LogLevel {
	switch {
	case debug:
		return logging.LevelDebug
	case quiet:
		return logging.LevelError
	default:
		return logging.ParseLevel(logLevel)
	}
}

func logOutput(cmd *cobra.Command) io.Writer {
	return cmd.ErrOrStderr()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/deskauth/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output and non-error logs")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newUsageCmd())
}
