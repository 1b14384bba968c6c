package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var sessionName string

	cmd := &cobra.Command{
		Use:   "index <repo-path>",
		Short: "Index a repository into a new session",
		Long: `Index a repository into a new named session.

Walks the repository, chunks every indexable file, and publishes the
session's first index generation. Fails if the session already exists;
use 'shebe reindex' to pick up changes.

Examples:
  shebe index . --session myproject
  shebe index ~/src/backend --session backend`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args[0], sessionName)
		},
	}

	cmd.Flags().StringVarP(&sessionName, "session", "s", "", "Session name (defaults to the repository directory name)")
	return cmd
}

func runIndex(cmd *cobra.Command, repoPath, sessionName string) error {
	svc, _, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return err
	}
	if sessionName == "" {
		sessionName = filepath.Base(abs)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexing %s into session %q...\n", abs, sessionName)

	sess, err := svc.IndexRepository(cmd.Context(), abs, sessionName)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files (%d chunks)\n", sess.FileCount, sess.ChunkCount)
	return nil
}
