package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"deskauth/internal/credentials"
	"deskauth/internal/events"
	"deskauth/pkg/auth"
)

var (
	statusCheck bool
	statusWatch bool
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored sign-in session",
		Long: `Show the stored sign-in session.

By default only the credential file is read. With --check the session token
is validated against the provider first, and an inactive session is removed.
With --watch the session is validated, then every sign-in or sign-out made by
another deskauth process is reported until interrupted.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
	cmd.Flags().BoolVar(&statusCheck, "check", false, "Validate the session against the provider")
	cmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Report sign-in changes until interrupted")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(appConfig, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if statusWatch {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watchStatus(ctx, out, a)
	}
	if statusCheck {
		return printCheckedStatus(cmd.Context(), out, a)
	}

	cred, err := a.store.Load()
	if err != nil {
		return err
	}
	if !cred.Usable() {
		printSignedOut(out, a.cfg.APIBaseURL)
		return &AuthRequiredError{Endpoint: a.cfg.APIBaseURL}
	}
	renderStatus(out, a.cfg.APIBaseURL, statusFromCredential(cred), cred, time.Now())
	return nil
}

func printCheckedStatus(ctx context.Context, out io.Writer, a *app) error {
	status, err := a.session.LoadPersisted(ctx)
	if err != nil {
		return err
	}
	if !status.IsAuthenticated {
		printSignedOut(out, a.cfg.APIBaseURL)
		return &AuthRequiredError{Endpoint: a.cfg.APIBaseURL}
	}

	cred, err := a.store.Load()
	if err != nil {
		return err
	}
	renderStatus(out, a.cfg.APIBaseURL, status, cred, time.Now())
	return nil
}

// watchStatus prints the session state once, then again whenever it changes
// because the credential file was written or removed elsewhere.
func watchStatus(ctx context.Context, out io.Writer, a *app) error {
	status, err := a.session.LoadPersisted(ctx)
	if err != nil {
		return err
	}
	if err := a.session.WatchCredentials(ctx); err != nil {
		return err
	}

	last := statusLine(status)
	fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.TimeOnly), last)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.events.Events():
			if !ok {
				return nil
			}
			if ev.Type != events.TypeAuthStatusChanged {
				continue
			}
			line := statusLine(ev.Status)
			if line == last {
				continue
			}
			last = line
			fmt.Fprintf(out, "%s %s\n", ev.Time.Format(time.TimeOnly), line)
		}
	}
}

func statusLine(status auth.Status) string {
	switch {
	case status.IsAuthenticated:
		return text.FgGreen.Sprintf("signed in as %s", status.User.DisplayName())
	case status.IsAuthenticating:
		return "signing in"
	default:
		return text.FgYellow.Sprint("not signed in")
	}
}

func printSignedOut(out io.Writer, endpoint string) {
	fmt.Fprintf(out, "%s Not signed in to %s\n", text.FgYellow.Sprint("!"), endpoint)
	fmt.Fprintln(out, "  Run 'deskauth login' to sign in.")
}

func statusFromCredential(cred *credentials.Credential) auth.Status {
	return auth.Status{
		State:           auth.StateSignedIn,
		IsAuthenticated: true,
		User:            cred.User,
	}
}

// renderStatus prints the session as a two-column table.
func renderStatus(out io.Writer, endpoint string, status auth.Status, cred *credentials.Credential, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("FIELD"),
		text.FgHiCyan.Sprint("VALUE"),
	})

	t.AppendRow(table.Row{"Endpoint", endpoint})
	t.AppendRow(table.Row{"State", text.FgGreen.Sprint(status.State.String())})
	if status.User != nil {
		t.AppendRow(table.Row{"User", status.User.DisplayName()})
		if status.User.Email != "" {
			t.AppendRow(table.Row{"Email", status.User.Email})
		}
	}
	if cred != nil {
		t.AppendRow(table.Row{"Token expires", tokenExpiry(cred.SessionToken, now)})
		if !cred.SavedAt.IsZero() {
			t.AppendRow(table.Row{"Signed in", formatDuration(now.Sub(cred.SavedAt)) + " ago"})
		}
		if cred.RefreshToken != "" {
			t.AppendRow(table.Row{"Refresh token", "stored"})
		}
	}
	t.Render()
}

// tokenExpiry reads the exp claim of a JWT session token without verifying
// it. Opaque tokens have no visible expiry.
func tokenExpiry(token string, now time.Time) string {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "unknown"
	}
	if claims.ExpiresAt == nil {
		return "never"
	}
	return formatExpiry(claims.ExpiresAt.Time, now)
}

// formatExpiry formats a time as "in X" or "expired X ago".
func formatExpiry(expiresAt, now time.Time) string {
	remaining := expiresAt.Sub(now)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	switch {
	case d < 0:
		return "expired"
	case d < time.Minute:
		return "< 1 minute"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
