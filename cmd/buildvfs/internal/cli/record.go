package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/buildvfs/internal/log"
	"github.com/albertocavalcante/buildvfs/pkg/fingerprint"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a fingerprint manifest of the declared build inputs",
	Long: `Records the current state of every input declared in the workspace
config as an ordered fingerprint manifest. Run it at the end of a successful
build; 'buildvfs status' validates the manifest before the next one.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	ctx := context.Background()

	rec := fingerprint.NewRecorder(ws.host)
	for _, input := range ws.cfg.Inputs {
		if err := rec.AddTaskInputs(ctx, input.Task, input.Ref); err != nil {
			return fmt.Errorf("failed to record inputs of task %s: %w", input.Task, err)
		}
	}
	for _, file := range ws.cfg.Files {
		if err := rec.AddInputFile(ctx, filepath.Join(ws.root, file)); err != nil {
			return fmt.Errorf("failed to record input file %s: %w", file, err)
		}
	}
	for _, value := range ws.cfg.Values {
		d := fingerprint.ValueSourceDescriptor{Type: value.Type, Parameters: value.Parameters}
		if err := rec.AddValueSource(d); err != nil {
			return fmt.Errorf("failed to record value source %s: %w", value.Type, err)
		}
	}
	if len(ws.cfg.Init.Scripts) > 0 {
		if err := rec.AddInitScripts(ctx); err != nil {
			return fmt.Errorf("failed to record init scripts: %w", err)
		}
	}

	path := ws.manifestPath()
	if err := fingerprint.SaveManifest(path, rec.Entries()); err != nil {
		return err
	}
	log.Info("manifest recorded", "path", path, "entries", len(rec.Entries()))
	fmt.Printf("Recorded %d entries to %s\n", len(rec.Entries()), path)
	return nil
}
