package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <session>",
		Short: "Re-scan a session's repository and update its index",
		Long: `Re-scan the session's repository and publish a new index generation.

Only changed files are reported; queries against the session keep
reading the previous generation until the new one is published. If
nothing changed, the existing generation is kept as is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd, args[0])
		},
	}
}

func runReindex(cmd *cobra.Command, sessionName string) error {
	svc, _, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := svc.ReindexSession(cmd.Context(), sessionName)
	if err != nil {
		return err
	}

	if report.Zero() {
		fmt.Fprintf(cmd.OutOrStdout(), "Session %q is up to date\n", sessionName)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Reindexed session %q: %d added, %d changed, %d removed\n",
		sessionName, report.Added, report.Changed, report.Removed)
	return nil
}
