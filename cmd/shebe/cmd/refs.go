package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shebe-search/shebe/internal/daemon"
	"github.com/shebe-search/shebe/internal/refs"
)

func newRefsCmd() *cobra.Command {
	var k int
	var format string
	var local bool

	cmd := &cobra.Command{
		Use:   "refs <session> <symbol>",
		Short: "Find references to a symbol",
		Long: `Find likely references to a symbol across a session's repository.

Each hit is classified (instantiation, annotation, qualified reference,
or plain word match) and given a calibrated confidence. Results are
grouped per file, best file first.

Examples:
  shebe refs myproject ConnectionPool
  shebe refs myproject handleRequest -n 20 --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefs(cmd.Context(), cmd, args[0], args[1], k, format, local)
		},
	}

	cmd.Flags().IntVarP(&k, "limit", "n", 0, "Maximum number of references (0 uses the configured default)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&local, "local", false, "Bypass the daemon and resolve in-process")

	return cmd
}

func runRefs(ctx context.Context, cmd *cobra.Command, sessionName, symbol string, k int, format string, local bool) error {
	if !local {
		client := daemon.NewClient(daemon.DefaultConfig())
		if client.IsRunning() {
			results, err := client.Refs(ctx, daemon.RefsParams{
				Session: sessionName,
				Symbol:  symbol,
				K:       k,
			})
			if err == nil {
				files := make([]*refs.FileMatches, 0, len(results))
				for _, fr := range results {
					fm := &refs.FileMatches{
						Path: fr.Path,
						Best: fr.Best,
					}
					for _, r := range fr.References {
						fm.Matches = append(fm.Matches, &refs.Match{
							Path:       fr.Path,
							Line:       r.Line,
							Text:       r.Text,
							Category:   refs.Category(r.Category),
							Confidence: r.Confidence,
						})
					}
					files = append(files, fm)
				}
				return printRefs(cmd, symbol, files, format)
			}
		}
	}

	svc, _, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	files, err := svc.FindReferences(ctx, sessionName, symbol, k)
	if err != nil {
		return err
	}
	return printRefs(cmd, symbol, files, format)
}

func printRefs(cmd *cobra.Command, symbol string, files []*refs.FileMatches, format string) error {
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(files)
	}

	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintf(out, "No references to %q found\n", symbol)
		return nil
	}

	for _, f := range files {
		fmt.Fprintf(out, "%s (best %.2f)\n", f.Path, f.Best)
		for _, m := range f.Matches {
			fmt.Fprintf(out, "  %5d  [%.2f %s]  %s\n", m.Line, m.Confidence, m.Category, m.Text)
		}
		fmt.Fprintln(out)
	}
	return nil
}
