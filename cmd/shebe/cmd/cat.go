package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCatCmd() *cobra.Command {
	var line int

	cmd := &cobra.Command{
		Use:   "cat <session> <path>",
		Short: "Print an indexed file",
		Long: `Print the current content of an indexed file.

With --line, prints only the indexed chunk covering that line instead
of the whole file.

Examples:
  shebe cat myproject internal/store/index.go
  shebe cat myproject internal/store/index.go --line 42`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(cmd, args[0], args[1], line)
		},
	}

	cmd.Flags().IntVar(&line, "line", 0, "Print only the chunk covering this line")
	return cmd
}

func runCat(cmd *cobra.Command, sessionName, relPath string, line int) error {
	svc, _, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	if line > 0 {
		preview, err := svc.PreviewChunk(cmd.Context(), sessionName, relPath, line)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s:%d-%d\n", preview.Path, preview.StartLine, preview.EndLine)
		fmt.Fprint(cmd.OutOrStdout(), preview.Text)
		if !strings.HasSuffix(preview.Text, "\n") {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	}

	content, err := svc.ReadFile(cmd.Context(), sessionName, relPath)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), content)
	return nil
}
