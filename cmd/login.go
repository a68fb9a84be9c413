package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"deskauth/internal/browser"
	"deskauth/internal/events"
	"deskauth/internal/session"
)

var loginNoBrowser bool

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the system browser",
		Long: `Sign in to the backend through the system browser.

A listener is started on 127.0.0.1 on the first free port of the configured
range and the provider's authorization page is opened. The command waits
until the browser is redirected back, the sign-in times out or it is
interrupted.

Examples:
  deskauth login
  deskauth login --no-browser`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
	cmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the sign-in URL instead of opening the browser")
	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var openBrowser browser.Opener
	if loginNoBrowser {
		openBrowser = func(string) error { return nil }
	}

	a, err := newApp(appConfig, openBrowser)
	if err != nil {
		return err
	}
	defer a.Close()

	return login(ctx, cmd.OutOrStdout(), a)
}

// login runs one sign-in attempt and waits for its outcome.
func login(ctx context.Context, out io.Writer, a *app) error {
	endpoint := a.cfg.APIBaseURL

	if status, _ := a.session.LoadPersisted(ctx); status.IsAuthenticated {
		fmt.Fprintf(out, "%s Already signed in as %s\n", text.FgGreen.Sprint("✓"), status.User.DisplayName())
		return nil
	}

	if err := a.session.Initiate(ctx); err != nil {
		return &AuthFailedError{Endpoint: endpoint, Reason: session.UserMessage(err), Err: err}
	}

	if authURL, ok := a.session.AuthorizationURL(); ok {
		if loginNoBrowser {
			fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", authURL)
		} else {
			fmt.Fprintf(out, "Opening your browser to sign in. If it does not open, visit:\n\n  %s\n\n", authURL)
		}
	}

	s := newSpinner(out, " Waiting for the browser sign-in...")
	s.Start()
	defer s.Stop()

	for {
		select {
		case <-ctx.Done():
			return &AuthFailedError{Endpoint: endpoint, Reason: "interrupted", Err: ctx.Err()}
		case ev, ok := <-a.events.Events():
			if !ok {
				return &AuthFailedError{Endpoint: endpoint, Reason: "session closed"}
			}
			switch ev.Type {
			case events.TypeAuthSuccess:
				s.Stop()
				fmt.Fprintf(out, "%s %s\n", text.FgGreen.Sprint("✓"), ev.Message)
				return nil
			case events.TypeAuthError:
				s.Stop()
				return &AuthFailedError{Endpoint: endpoint, Reason: ev.Message, Err: ev.Err}
			}
		}
	}
}

// newSpinner returns a spinner writing to out, silenced in quiet mode.
func newSpinner(out io.Writer, suffix string) *spinner.Spinner {
	if quiet {
		out = io.Discard
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.Suffix = suffix
	return s
}
