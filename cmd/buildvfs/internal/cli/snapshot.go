package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/buildvfs/pkg/vfs"
)

var snapshotFlags struct {
	ext []string
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [path]",
	Short: "Print the snapshot tree of a workspace location",
	Long: `Reads the snapshot of a path through the store and prints one line per
entry: kind, path relative to the requested root, and the content hash for
files. Defaults to the workspace root. Ignored entry names from the config
are filtered out; --ext restricts files to the given extensions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringSliceVar(&snapshotFlags.ext, "ext", nil,
		"Only include files with these extensions (e.g. --ext .go,.kt)")

	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}

	target := ws.root
	if len(args) == 1 {
		target = args[0]
		if !filepath.IsAbs(target) {
			target = filepath.Join(ws.root, target)
		}
	}

	filter := vfs.ExcludeNames(ws.cfg.Workspace.Ignore...)
	if len(snapshotFlags.ext) > 0 {
		filter = vfs.AllOf(filter, vfs.ExtensionFilter(snapshotFlags.ext...))
	}

	snap, err := ws.store.ReadFiltered(context.Background(), target, filter)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("%s is excluded by the configured filters", target)
	}

	vfs.Walk(snap, func(s vfs.Snapshot, relPath string) vfs.VisitResult {
		display := relPath
		if display == "" {
			display = "."
		}
		switch s := s.(type) {
		case *vfs.FileSnapshot:
			fmt.Printf("file    %-40s %s\n", display, s.Hash())
		case *vfs.DirectorySnapshot:
			fmt.Printf("dir     %s%c\n", display, filepath.Separator)
		case *vfs.MissingSnapshot:
			fmt.Printf("missing %s\n", display)
		}
		return vfs.VisitContinue
	})
	return nil
}
