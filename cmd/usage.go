package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show the remaining API quota of the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appConfig, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			status, err := a.session.LoadPersisted(ctx)
			if err != nil {
				return err
			}
			if !status.IsAuthenticated {
				return &AuthRequiredError{Endpoint: a.cfg.APIBaseURL}
			}

			s := newSpinner(cmd.ErrOrStderr(), " Fetching usage...")
			s.Start()
			info := a.session.FetchUsage(ctx)
			s.Stop()

			out := cmd.OutOrStdout()
			if info == nil {
				fmt.Fprintf(out, "%s Usage is not available right now\n", text.FgYellow.Sprint("!"))
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{
				text.FgHiCyan.Sprint("USER"),
				text.FgHiCyan.Sprint("REMAINING"),
				text.FgHiCyan.Sprint("TOTAL"),
			})
			t.AppendRow(table.Row{status.User.DisplayName(), info.RequestsRemaining, info.TotalRequests})
			t.Render()
			return nil
		},
	}
}
