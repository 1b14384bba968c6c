package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shebe-search/shebe/internal/session"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <session>",
		Short: "Check a session's schema compatibility",
		Long: `Check whether a session's on-disk schema matches this binary.

Reports one of:
  current           ready to use
  upgrade_required  run 'shebe upgrade' before mutating the session
  incompatible      created by a newer release; upgrade the binary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, sessionName string) error {
	svc, _, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	status, err := svc.ValidateSession(sessionName)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session %q schema: %s\n", sessionName, status)

	switch status {
	case session.SchemaUpgradeRequired:
		fmt.Fprintf(cmd.OutOrStdout(), "Run 'shebe upgrade %s' to migrate\n", sessionName)
	case session.SchemaIncompatible:
		fmt.Fprintln(cmd.OutOrStdout(), "This session was created by a newer shebe release")
	}
	return nil
}
