package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "buildvfs.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".buildvfs"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "buildvfs"

// Load loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/buildvfs/config.toml)
//  3. Project config (.buildvfs/config.toml or buildvfs.toml)
//  4. Environment variables (BUILDVFS_*)
//
// CLI flags are applied separately after Load() returns.
func Load() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory.
func LoadFrom(dir string) *Config {
	cfg := NewConfig()

	// Layer 2: Global user config
	if globalCfg := loadGlobalConfig(); globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	// Layer 3: Project config from specified directory
	if projectCfg := loadProjectConfigFrom(dir); projectCfg != nil {
		cfg.Merge(projectCfg)
	}

	// Layer 4: Environment variables
	applyEnvironmentVariables(cfg)

	return cfg
}

// loadGlobalConfig loads the global user configuration from ~/.config/buildvfs/config.toml.
func loadGlobalConfig() *Config {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}

	configPath := filepath.Join(configDir, GlobalConfigDir, "config.toml")
	return loadConfigFile(configPath)
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) *Config {
	// Search up the directory tree for config files
	current := dir
	for {
		// Check for .buildvfs/config.toml first
		configInDir := filepath.Join(current, ConfigDirName, "config.toml")
		if cfg := loadConfigFile(configInDir); cfg != nil {
			return cfg
		}

		// Check for buildvfs.toml in project root
		configToml := filepath.Join(current, ConfigFileName)
		if cfg := loadConfigFile(configToml); cfg != nil {
			return cfg
		}

		// Stop at filesystem root or workspace root
		if isWorkspaceRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil
}

// isWorkspaceRoot checks if the directory is a workspace root (has .git, WORKSPACE, or MODULE.bazel).
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", "WORKSPACE", "WORKSPACE.bazel", "MODULE.bazel"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file.
func loadConfigFile(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil
	}

	return &cfg
}

// applyEnvironmentVariables applies BUILDVFS_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	if root := os.Getenv("BUILDVFS_WORKSPACE_ROOT"); root != "" {
		cfg.Workspace.Root = root
	}
	if ignore := os.Getenv("BUILDVFS_IGNORE"); ignore != "" {
		cfg.Workspace.Ignore = splitAndTrim(ignore)
	}
	if path := os.Getenv("BUILDVFS_MANIFEST_PATH"); path != "" {
		cfg.Manifest.Path = path
	}
	applyIntEnv("BUILDVFS_WATCH_DEBOUNCE_MILLIS", &cfg.Watch.DebounceMillis)
	applyIntEnv("BUILDVFS_LOG_VERBOSITY", &cfg.Log.Verbosity)
	if format := os.Getenv("BUILDVFS_LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyIntEnv parses an integer environment variable into target if set.
func applyIntEnv(key string, target *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*target = n
	}
}
