package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/albertocavalcante/buildvfs/pkg/vfs"
)

func TestWatcherInvalidatesStoreOnWrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(target, []byte("before"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := vfs.NewStore()
	ctx := context.Background()
	before, err := store.Read(ctx, target)
	if err != nil {
		t.Fatal(err)
	}

	invalidated := make(chan []string, 1)
	w, err := New(store, Config{
		Root:     dir,
		Debounce: 20,
		OnInvalidate: func(paths []string) {
			select {
			case invalidated <- paths:
			default:
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	// Give the watcher a moment to establish watches, then change the file
	// behind the store's back.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(target, []byte("after"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-invalidated:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never flushed an invalidation")
	}

	after, err := store.Read(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	if after.(*vfs.FileSnapshot).Hash() == before.(*vfs.FileSnapshot).Hash() {
		t.Error("store served stale state after a watched change")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not shut down")
	}
}

func TestWatcherIgnoresExcludedNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	invalidated := make(chan []string, 1)
	store := vfs.NewStore()
	w, err := New(store, Config{
		Root:     dir,
		Ignore:   []string{".git"},
		Debounce: 20,
		OnInvalidate: func(paths []string) {
			select {
			case invalidated <- paths:
			default:
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(runCtx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, ".git", "index"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-invalidated:
		t.Errorf("watcher flushed for an ignored subtree: %v", paths)
	case <-time.After(300 * time.Millisecond):
	}
}
