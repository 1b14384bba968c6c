package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files <session> <glob>",
		Short: "List indexed files matching a glob",
		Long: `List a session's indexed file paths matching a glob pattern.

The pattern matches against the full relative path, the basename, or a
directory prefix (e.g. "internal/*").

Examples:
  shebe files myproject "*.go"
  shebe files myproject "internal/store/*"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFiles(cmd, args[0], args[1])
		},
	}
}

func runFiles(cmd *cobra.Command, sessionName, glob string) error {
	svc, _, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	paths, err := svc.FindFile(cmd.Context(), sessionName, glob)
	if err != nil {
		return err
	}

	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
