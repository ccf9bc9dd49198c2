package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/buildvfs/internal/log"
	"github.com/albertocavalcante/buildvfs/pkg/vfs"
)

// Config configures the watcher.
type Config struct {
	// Root is the directory watched recursively.
	Root string

	// Ignore lists entry names whose subtrees are not watched.
	Ignore []string

	// Debounce is the event-coalescing window in milliseconds.
	Debounce int

	// OnInvalidate, if set, is called with each flushed batch of paths
	// after the store has been invalidated.
	OnInvalidate func(paths []string)
}

// Watcher keeps a vfs.Store honest about changes made behind its back: file
// events from the OS are coalesced and turned into store invalidations, so
// a long-lived store never serves state the build didn't write itself.
type Watcher struct {
	config    Config
	store     *vfs.Store
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	ignore    vfs.PathFilter
}

// New creates a watcher invalidating store on changes beneath cfg.Root.
func New(store *vfs.Store, cfg Config) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		config:    cfg,
		store:     store,
		fsWatcher: fsWatcher,
		ignore:    vfs.ExcludeNames(cfg.Ignore...),
	}, nil
}

// Run starts the watch loop. It blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsWatcher.Close() }()

	debounceWindow := time.Duration(w.config.Debounce) * time.Millisecond
	if debounceWindow <= 0 {
		debounceWindow = 200 * time.Millisecond
	}
	w.debouncer = NewDebouncer(debounceWindow, w.invalidate)
	defer w.debouncer.Stop()

	if err := w.addRecursive(w.config.Root); err != nil {
		return fmt.Errorf("failed to watch workspace: %w", err)
	}
	log.Info("watching workspace", "root", w.config.Root)

	for {
		select {
		case <-ctx.Done():
			log.Debug("watcher shutting down")
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watch error", "err", err)
		}
	}
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				log.Debug("skipping unreadable directory", "path", path)
				return nil
			}
			log.Warn("walk error", "path", path, "err", err)
			return nil
		}

		if !d.IsDir() {
			return nil
		}
		if !w.ignore(d.Name()) && path != root {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("inotify watch limit reached for %s: %w\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", path, err)
			}
			log.Debug("failed to watch directory", "path", path, "err", err)
			return nil
		}
		return nil
	})
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if !w.ignore(filepath.Base(path)) {
		return
	}

	// New directories need watches of their own.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(path); err != nil {
				log.Error("failed to watch new directory", "path", path, "err", err)
			}
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return // chmod only
	}

	log.V(3).Debug("file changed", "path", path, "op", event.Op.String())
	w.debouncer.Add(path)
}

// invalidate is called when the debouncer flushes a batch of changed paths.
func (w *Watcher) invalidate(paths []string) {
	w.store.Invalidate(paths...)
	log.Debug("invalidated changed paths", "count", len(paths))
	if w.config.OnInvalidate != nil {
		w.config.OnInvalidate(paths)
	}
}
