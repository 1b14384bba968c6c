package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <session>",
		Short: "Show one session's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runInfo(cmd *cobra.Command, sessionName string, jsonOutput bool) error {
	svc, _, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	sess, err := svc.GetSessionInfo(sessionName)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:        %s\n", sess.Name)
	fmt.Fprintf(out, "Repository:     %s\n", sess.RepoPath)
	fmt.Fprintf(out, "Schema version: %d\n", sess.SchemaVersion)
	fmt.Fprintf(out, "Generation:     %d\n", sess.Generation)
	fmt.Fprintf(out, "Files:          %d\n", sess.FileCount)
	fmt.Fprintf(out, "Chunks:         %d\n", sess.ChunkCount)
	fmt.Fprintf(out, "Created:        %s\n", sess.CreatedAt.Format(time.RFC3339))
	if !sess.LastReindexed.IsZero() {
		fmt.Fprintf(out, "Last reindexed: %s\n", sess.LastReindexed.Format(time.RFC3339))
	}
	return nil
}
