// Package cmd provides the CLI commands for Shebe.
package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shebe-search/shebe/internal/config"
	"github.com/shebe-search/shebe/internal/logging"
	"github.com/shebe-search/shebe/internal/service"
	"github.com/shebe-search/shebe/pkg/version"
)

// Persistent flags shared by all commands.
var (
	flagStorageRoot string
	flagLogLevel    string
)

// NewRootCmd creates the root command for the shebe CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shebe",
		Short: "Session-scoped code search for AI coding agents",
		Long: `Shebe indexes repositories into named sessions and serves ranked
keyword search and reference resolution over them.

Sessions are safe to share between the MCP server, the daemon, and
the CLI: mutations take a session-scoped lock and queries always read
the last published index.

Get started:
  shebe index /path/to/repo --session myproject
  shebe search myproject "connection pool"
  shebe serve`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("shebe version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagStorageRoot, "storage-root", "", "Override the session storage directory")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newUpgradeCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRefsCmd())
	cmd.AddCommand(newFilesCmd())
	cmd.AddCommand(newCatCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig loads configuration from the working directory and applies
// the persistent flag overrides.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	if flagStorageRoot != "" {
		cfg.Storage.Root = flagStorageRoot
	}
	if flagLogLevel != "" {
		cfg.Server.LogLevel = flagLogLevel
	}
	return cfg, nil
}

// newService builds the service layer with file-backed logging. CLI
// commands keep stderr free of log noise; use --log-level debug plus
// the log file for diagnostics.
func newService() (*service.Service, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = false

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Log file unavailable; run with a discarding logger.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		cleanup = func() {}
	}

	svc, err := service.New(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return svc, cfg, cleanup, nil
}
