package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUpgradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <session>",
		Short: "Upgrade a session to the current schema version",
		Long: `Migrate a session's on-disk layout to the current schema version.

Runs each pending migration in order, bumping and persisting the
version after every step so an interrupted upgrade can resume.
Sessions created by a newer release are refused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgrade(cmd, args[0])
		},
	}
}

func runUpgrade(cmd *cobra.Command, sessionName string) error {
	svc, _, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	sess, err := svc.UpgradeSession(cmd.Context(), sessionName)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session %q is at schema version %d\n", sessionName, sess.SchemaVersion)
	return nil
}
