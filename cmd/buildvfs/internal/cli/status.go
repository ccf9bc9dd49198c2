package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/buildvfs/pkg/fingerprint"
)

var statusFlags struct {
	json bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the recorded build outcome is still reusable",
	Long: `Validates the recorded fingerprint manifest against the current state
of the workspace. Prints "up to date" when every recorded input still
matches, or the first reason the previous outcome cannot be reused.

Exits non-zero when the outcome is stale, so scripts can branch on it.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(statusCmd)
}

// StatusOutput is the JSON output format for buildvfs status.
type StatusOutput struct {
	UpToDate bool   `json:"up_to_date"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}

	reader, closer, err := fingerprint.OpenManifest(ws.manifestPath())
	if errors.Is(err, fs.ErrNotExist) {
		if statusFlags.json {
			return outputJSON(StatusOutput{Error: "no manifest found"})
		}
		fmt.Println("No manifest found. Run 'buildvfs record' after a build to create one.")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	reason, err := fingerprint.Check(context.Background(), reader, ws.host)
	if err != nil {
		return fmt.Errorf("failed to validate manifest: %w", err)
	}

	if statusFlags.json {
		if err := outputJSON(StatusOutput{UpToDate: reason == "", Reason: reason}); err != nil {
			return err
		}
	} else if reason == "" {
		fmt.Println("up to date")
	} else {
		fmt.Println(reason)
	}

	if reason != "" {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		os.Exit(1)
	}
	return nil
}

// outputJSON marshals v to stdout with indentation.
func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
