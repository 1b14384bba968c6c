package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shebe-search/shebe/internal/daemon"
	"github.com/shebe-search/shebe/internal/engine"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	k        int
	language string
	pathGlob string
	format   string // "text", "json"
	local    bool   // force in-process search, bypass daemon
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <session> <query>",
		Short: "Search a session's indexed repository",
		Long: `Run a ranked keyword query against a session.

Identifiers are split on camelCase and snake_case, so partial names
match: searching "pool size" finds maxPoolSize and POOL_SIZE_LIMIT.

Uses the daemon when it is running, otherwise opens the index directly.

Examples:
  shebe search myproject "connection pool"
  shebe search myproject "handleRequest" -n 5 --language go
  shebe search myproject "retry" --path "internal/*" --format json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args[1:], " ")
			return runSearch(cmd.Context(), cmd, args[0], query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "limit", "n", 0, "Maximum number of results (0 uses the configured default)")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g. go, python)")
	cmd.Flags().StringVarP(&opts.pathGlob, "path", "p", "", "Filter results to matching paths")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Bypass the daemon and search in-process")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, sessionName, query string, opts searchOptions) error {
	// Daemon path: reuse the warm process when it is up.
	if !opts.local {
		client := daemon.NewClient(daemon.DefaultConfig())
		if client.IsRunning() {
			results, err := client.Search(ctx, daemon.SearchParams{
				Session:  sessionName,
				Query:    query,
				K:        opts.k,
				Language: opts.language,
				PathGlob: opts.pathGlob,
			})
			if err == nil {
				snippets := make([]*engine.Snippet, 0, len(results))
				for _, r := range results {
					snippets = append(snippets, &engine.Snippet{
						Path:      r.Path,
						Line:      r.Line,
						Score:     r.Score,
						StartLine: r.StartLine,
						Text:      r.Text,
					})
				}
				return printSnippets(cmd, query, snippets, opts.format)
			}
			// Daemon failed; fall through to in-process search.
		}
	}

	svc, _, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	snippets, err := svc.SearchCode(ctx, sessionName, query, opts.k, engine.Filters{
		Language: opts.language,
		PathGlob: opts.pathGlob,
	})
	if err != nil {
		return err
	}
	return printSnippets(cmd, query, snippets, opts.format)
}

func printSnippets(cmd *cobra.Command, query string, snippets []*engine.Snippet, format string) error {
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snippets)
	}

	out := cmd.OutOrStdout()
	if len(snippets) == 0 {
		fmt.Fprintf(out, "No results for %q\n", query)
		return nil
	}

	for i, sn := range snippets {
		fmt.Fprintf(out, "%d. %s:%d (score %.2f)\n", i+1, sn.Path, sn.Line, sn.Score)
		for _, line := range strings.Split(strings.TrimRight(sn.Text, "\n"), "\n") {
			fmt.Fprintf(out, "   %s\n", line)
		}
		fmt.Fprintln(out)
	}
	return nil
}
