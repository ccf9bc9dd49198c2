package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/buildvfs/pkg/config"
	"github.com/albertocavalcante/buildvfs/pkg/fingerprint"
	"github.com/albertocavalcante/buildvfs/pkg/vfs"
)

// workspace bundles the loaded config with the store and host built from it.
type workspace struct {
	cfg   *config.Config
	root  string
	store *vfs.Store
	host  *fingerprint.StoreHost
}

// openWorkspace resolves the workspace root, loads config, and wires a host
// whose declared inputs, init scripts, and value sources come from config.
func openWorkspace() (*workspace, error) {
	root := globalFlags.workspace
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		root = wd
	}

	cfg := config.LoadFrom(root)
	if cfg.Workspace.Root != "" && globalFlags.workspace == "" {
		root = cfg.Workspace.Root
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	w := &workspace{cfg: cfg, root: root, store: vfs.NewStore()}
	w.host = w.newHost()
	return w, nil
}

// newHost builds a fresh host over the shared store. Fingerprint memoization
// is scoped to a host, so long-lived processes build one per check attempt.
func (w *workspace) newHost() *fingerprint.StoreHost {
	host := fingerprint.NewStoreHost(w.store, w.root)
	host.RegisterValueSource(fingerprint.EnvValueSourceType, fingerprint.NewEnvValueSource)

	for _, input := range w.cfg.Inputs {
		paths := make([]string, len(input.Paths))
		for i, p := range input.Paths {
			paths[i] = filepath.Join(w.root, p)
		}
		host.RegisterInputs(input.Ref, paths)
	}
	scripts := make([]string, len(w.cfg.Init.Scripts))
	for i, s := range w.cfg.Init.Scripts {
		scripts[i] = filepath.Join(w.root, s)
	}
	host.SetInitScripts(scripts)
	return host
}

// manifestPath resolves the configured manifest location.
func (w *workspace) manifestPath() string {
	if filepath.IsAbs(w.cfg.Manifest.Path) {
		return w.cfg.Manifest.Path
	}
	return filepath.Join(w.root, w.cfg.Manifest.Path)
}
