package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shebe-search/shebe/internal/daemon"
	"github.com/shebe-search/shebe/internal/logging"
	"github.com/shebe-search/shebe/internal/service"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background query daemon",
		Long: `The daemon serves search and reference queries over a Unix socket.

It is the second serving process alongside 'shebe serve': both read the
same published session artifacts, and neither blocks the other.

Examples:
  shebe daemon start     # Run the daemon (foreground)
  shebe daemon status    # Check if the daemon is running
  shebe daemon stop      # Stop the daemon`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long: `Start the query daemon and block until interrupted.

Writes a PID file so 'shebe daemon stop' can find the process. Use your
process supervisor to run it in the background.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStart(cmd.Context(), cmd)
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long:  `Send SIGTERM to the daemon process for graceful shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDaemonStart(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dcfg := daemon.DefaultConfig()
	if cfg.Server.SocketPath != "" {
		dcfg.SocketPath = cfg.Server.SocketPath
	}
	if err := dcfg.EnsureDir(); err != nil {
		return err
	}

	client := daemon.NewClient(dcfg)
	if client.IsRunning() {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is already running")
		return nil
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
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

	srv, err := daemon.NewServer(dcfg.SocketPath, svc, logger)
	if err != nil {
		return err
	}

	pidFile := daemon.NewPIDFile(dcfg.PIDPath)
	if err := pidFile.Write(); err != nil {
		return err
	}
	defer func() { _ = pidFile.Remove() }()

	fmt.Fprintf(cmd.OutOrStdout(), "Daemon listening on %s\n", dcfg.SocketPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	err = srv.ListenAndServe(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runDaemonStop(cmd *cobra.Command) error {
	dcfg := daemon.DefaultConfig()

	pidFile := daemon.NewPIDFile(dcfg.PIDPath)
	if !pidFile.IsRunning() {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
		return nil
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	// Wait briefly for the socket to disappear.
	client := daemon.NewClient(dcfg)
	for i := 0; i < 50; i++ {
		if !client.IsRunning() {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
	return nil
}

func runDaemonStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	dcfg := daemon.DefaultConfig()
	client := daemon.NewClient(dcfg)

	if !client.IsRunning() {
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]bool{"running": false})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
		return nil
	}

	status, err := client.Status(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Daemon running (pid %d)\n", status.PID)
	fmt.Fprintf(cmd.OutOrStdout(), "  Uptime:       %s\n", status.Uptime)
	fmt.Fprintf(cmd.OutOrStdout(), "  Storage root: %s\n", status.StorageRoot)
	fmt.Fprintf(cmd.OutOrStdout(), "  Sessions:     %d\n", status.SessionCount)
	return nil
}
