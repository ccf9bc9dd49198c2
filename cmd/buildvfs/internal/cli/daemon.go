package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/buildvfs/cmd/buildvfs/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the per-workspace daemon",
	Long: `The daemon keeps a warm snapshot cache for the workspace and answers
checks over a Unix socket, so repeated 'buildvfs check' calls skip
rescanning unchanged directory trees. A filesystem watcher invalidates
cached state as files change.

Daemon files live under .buildvfs/ in the workspace root.`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the daemon in the foreground",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE:  runDaemonStatus,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the recorded outcome via the daemon's warm cache",
	Long: `Like 'buildvfs status', but the check runs inside the daemon against
its warm snapshot cache. Requires 'buildvfs daemon start' to be running
for this workspace.`,
	RunE: runDaemonCheck,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(checkCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}

	paths := daemon.WorkspacePaths(ws.root)
	if status := daemon.GetStatus(paths); status.Running {
		return fmt.Errorf("daemon already running (pid %d)", status.PID)
	}

	handler := daemon.NewHandler(daemon.HandlerConfig{
		Store:        ws.store,
		NewHost:      ws.newHost,
		ManifestPath: ws.manifestPath(),
		Root:         ws.root,
		Ignore:       ws.cfg.Workspace.Ignore,
		Debounce:     ws.cfg.Watch.DebounceMillis,
	})
	server := daemon.NewServer(daemon.ServerConfig{
		Paths:   paths,
		Version: Version,
		Handler: handler,
	})

	return server.Start(cmd.Context())
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}

	paths := daemon.WorkspacePaths(ws.root)
	status := daemon.GetStatus(paths)
	if !status.Running {
		fmt.Println("daemon is not running")
		return nil
	}

	// Prefer a graceful shutdown over the socket; fall back to SIGTERM.
	client, err := daemon.Connect(paths.Socket)
	if err == nil {
		_, err = client.Shutdown()
		_ = client.Close()
	}
	if err != nil {
		if err := daemon.StopProcess(status.PID); err != nil {
			return fmt.Errorf("failed to stop daemon (pid %d): %w", status.PID, err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for daemon.IsProcessRunning(status.PID) {
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon (pid %d) did not stop", status.PID)
		}
		time.Sleep(50 * time.Millisecond)
	}

	fmt.Println("daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}

	paths := daemon.WorkspacePaths(ws.root)
	status := daemon.GetStatus(paths)
	switch {
	case status.Running:
		fmt.Printf("daemon running (pid %d, socket %s)\n", status.PID, status.SocketPath)
	case status.Stale:
		fmt.Printf("daemon not running (stale pid file for pid %d)\n", status.PID)
	default:
		fmt.Println("daemon not running")
	}
	return nil
}

func runDaemonCheck(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}

	paths := daemon.WorkspacePaths(ws.root)
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to reach daemon (is 'buildvfs daemon start' running?): %w", err)
	}
	defer func() { _ = client.Close() }()

	result, err := client.Check()
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	if result.UpToDate {
		fmt.Println("up to date")
		return nil
	}
	fmt.Println(result.Reason)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	os.Exit(1)
	return nil
}
