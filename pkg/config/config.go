// Package config provides configuration management for buildvfs.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/buildvfs/config.toml)
//  3. Project config (.buildvfs/config.toml or buildvfs.toml)
//  4. Environment variables (BUILDVFS_*)
//  5. CLI flags (highest priority)
package config

// Config is the main configuration struct for buildvfs.
type Config struct {
	// Workspace configures where state is read from.
	Workspace WorkspaceConfig `toml:"workspace"`

	// Manifest configures fingerprint-manifest persistence.
	Manifest ManifestConfig `toml:"manifest"`

	// Watch configures file-watch based cache invalidation.
	Watch WatchConfig `toml:"watch"`

	// Log configures logging.
	Log LogConfig `toml:"log"`

	// Inputs declares the task input collections to fingerprint.
	Inputs []InputConfig `toml:"inputs"`

	// Files declares standalone input files to fingerprint.
	Files []string `toml:"files"`

	// Values declares value sources to fingerprint.
	Values []ValueConfig `toml:"values"`

	// Init declares the init scripts applied to every build, in order.
	Init InitConfig `toml:"init"`
}

// InputConfig declares one task's file-system inputs.
type InputConfig struct {
	// Task is the task path, e.g. ":compile".
	Task string `toml:"task"`

	// Ref names the file collection.
	Ref string `toml:"ref"`

	// Paths are the collection roots, relative to the workspace root.
	Paths []string `toml:"paths"`
}

// ValueConfig declares one value source.
type ValueConfig struct {
	// Type is the declared value source type, e.g. "env".
	Type string `toml:"type"`

	// Parameters configure the source, e.g. name = "CI".
	Parameters map[string]string `toml:"parameters"`
}

// InitConfig declares init scripts.
type InitConfig struct {
	// Scripts are paths relative to the workspace root, in application order.
	Scripts []string `toml:"scripts"`
}

// WorkspaceConfig locates the workspace and what to skip inside it.
type WorkspaceConfig struct {
	// Root is the workspace root. Empty means the current directory.
	Root string `toml:"root"`

	// Ignore lists entry names excluded from snapshots and watching,
	// e.g. ".git" or "bazel-out".
	Ignore []string `toml:"ignore"`
}

// ManifestConfig holds fingerprint-manifest settings.
type ManifestConfig struct {
	// Path of the recorded manifest, relative to the workspace root.
	Path string `toml:"path"`
}

// WatchConfig holds file-watching settings.
type WatchConfig struct {
	// DebounceMillis is the window for coalescing change events.
	DebounceMillis int `toml:"debounce_millis"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Verbosity maps to -v (0=error .. 4=trace).
	Verbosity int `toml:"verbosity"`

	// Format is "text" or "json".
	Format string `toml:"format"`
}

// DefaultIgnore is the built-in list of entry names excluded from snapshots
// and watching.
var DefaultIgnore = []string{".git", ".hg", ".buildvfs", "bazel-out", "bazel-bin", "bazel-testlogs"}

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Ignore: append([]string(nil), DefaultIgnore...),
		},
		Manifest: ManifestConfig{
			Path: ".buildvfs/manifest.json",
		},
		Watch: WatchConfig{
			DebounceMillis: 200,
		},
		Log: LogConfig{
			Verbosity: 1,
			Format:    "text",
		},
	}
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Workspace.Root != "" {
		c.Workspace.Root = other.Workspace.Root
	}
	if len(other.Workspace.Ignore) > 0 {
		c.Workspace.Ignore = other.Workspace.Ignore
	}
	if other.Manifest.Path != "" {
		c.Manifest.Path = other.Manifest.Path
	}
	if other.Watch.DebounceMillis > 0 {
		c.Watch.DebounceMillis = other.Watch.DebounceMillis
	}
	if other.Log.Verbosity > 0 {
		c.Log.Verbosity = other.Log.Verbosity
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
	if len(other.Inputs) > 0 {
		c.Inputs = other.Inputs
	}
	if len(other.Files) > 0 {
		c.Files = other.Files
	}
	if len(other.Values) > 0 {
		c.Values = other.Values
	}
	if len(other.Init.Scripts) > 0 {
		c.Init.Scripts = other.Init.Scripts
	}
}
