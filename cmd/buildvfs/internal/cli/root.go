// Package cli implements the buildvfs command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/albertocavalcante/buildvfs/internal/log"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands
var globalFlags struct {
	verbosity int
	logFormat string
	workspace string
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "buildvfs",
	Short: "Incremental-build state cache and fingerprint checker",
	Long: `buildvfs keeps a hierarchical snapshot cache of file-system state and
validates recorded build-input fingerprints against it, deciding whether the
outcome of a previous build can be reused and, if not, why.

Inputs are declared in buildvfs.toml (or .buildvfs/config.toml). Use
'buildvfs record' after a build and 'buildvfs status' before the next one.`,
	// Default behavior: show help
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("buildvfs %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Global flags (persistent across all commands)
	rootCmd.PersistentFlags().IntVarP(&globalFlags.verbosity, "verbosity", "v", 1,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.logFormat, "log-format", "",
		"Log format (text, json); defaults to text on a terminal, json otherwise")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.workspace, "workspace", "w", "",
		"Workspace root (defaults to the config's workspace root or the current directory)")

	// Hook to apply flags before command runs
	cobra.OnInitialize(initLogging)
}

// initLogging applies CLI flags to the logger.
// This runs after flags are parsed but before command execution.
func initLogging() {
	format := globalFlags.logFormat
	if format == "" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "text"
		} else {
			format = "json"
		}
	}
	log.Init(globalFlags.verbosity, format)
}

// RootCmd returns the root command (used by tests).
func RootCmd() *cobra.Command {
	return rootCmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
