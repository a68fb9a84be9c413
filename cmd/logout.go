package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appConfig, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := a.store.Load()
			if err != nil {
				return err
			}
			if err := a.session.SignOut(); err != nil {
				return err
			}

			if cred == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Signed out from %s\n", text.FgGreen.Sprint("✓"), a.cfg.APIBaseURL)
			return nil
		},
	}
}
