package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shebe-search/shebe/internal/logging"
	"github.com/shebe-search/shebe/internal/mcp"
	"github.com/shebe-search/shebe/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the Model Context Protocol server on stdin/stdout.

This is the transport AI coding agents connect to. Stdout carries the
JSON-RPC stream, so all logging goes to the rotating log file.

Register with a client, e.g. in Claude Code:
  claude mcp add shebe -- shebe serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Stdout belongs to the JSON-RPC stream, stderr to the client's
	// error capture. File logging only.
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = false

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	svc, err := service.New(cfg, logger)
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(svc, cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("serve starting",
		slog.String("storage_root", cfg.Storage.Root),
		slog.String("log_file", logCfg.FilePath))

	return srv.Serve(cmd.Context())
}
