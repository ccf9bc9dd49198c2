package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/buildvfs/cmd/buildvfs/internal/watch"
	"github.com/albertocavalcante/buildvfs/internal/log"
)

var watchFlags struct {
	debounce int
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workspace and invalidate cached state on changes",
	Long: `Watches the workspace recursively and invalidates the snapshot cache
whenever files change on disk, logging each batch of invalidated paths.
Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchFlags.debounce, "debounce", 0,
		"Debounce window in milliseconds (0 = use config)")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}

	debounce := ws.cfg.Watch.DebounceMillis
	if watchFlags.debounce > 0 {
		debounce = watchFlags.debounce
	}

	w, err := watch.New(ws.store, watch.Config{
		Root:     ws.root,
		Ignore:   ws.cfg.Workspace.Ignore,
		Debounce: debounce,
		OnInvalidate: func(paths []string) {
			log.Info("cache invalidated", "paths", len(paths))
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", ws.root)
	return w.Run(ctx)
}
