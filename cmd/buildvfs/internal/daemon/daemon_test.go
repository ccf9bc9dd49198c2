package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/albertocavalcante/buildvfs/pkg/fingerprint"
	"github.com/albertocavalcante/buildvfs/pkg/vfs"
)

// newTestDaemon starts a daemon over a small workspace with a recorded
// manifest for task ":compile" reading the src directory.
func newTestDaemon(t *testing.T) (*Client, string) {
	t.Helper()

	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "main.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatal(err)
	}

	store := vfs.NewStore()
	newHost := func() *fingerprint.StoreHost {
		h := fingerprint.NewStoreHost(store, root)
		h.RegisterInputs("srcs", []string{srcDir})
		return h
	}

	manifestPath := filepath.Join(root, DaemonDirName, "manifest.json")
	rec := fingerprint.NewRecorder(newHost())
	if err := rec.AddTaskInputs(context.Background(), ":compile", "srcs"); err != nil {
		t.Fatalf("failed to record task inputs: %v", err)
	}
	if err := fingerprint.SaveManifest(manifestPath, rec.Entries()); err != nil {
		t.Fatalf("failed to save manifest: %v", err)
	}

	paths := WorkspacePaths(root)
	handler := NewHandler(HandlerConfig{
		Store:        store,
		NewHost:      newHost,
		ManifestPath: manifestPath,
		Root:         root,
		Ignore:       []string{DaemonDirName, ".git"},
		Debounce:     50,
	})
	server := NewServer(ServerConfig{Paths: paths, Version: "test", Handler: handler})

	done := make(chan error, 1)
	go func() {
		done <- server.Start(context.Background())
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(paths.Socket); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon socket never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}

	client, err := Connect(paths.Socket)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
		server.RequestShutdown()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server stopped with error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return client, root
}

func TestDaemonPing(t *testing.T) {
	client, _ := newTestDaemon(t)

	result, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if !result.Pong {
		t.Error("Pong = false")
	}
	if result.Version != "test" {
		t.Errorf("Version = %q, want %q", result.Version, "test")
	}
}

func TestDaemonCheckDetectsEdit(t *testing.T) {
	client, root := newTestDaemon(t)

	result, err := client.Check()
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !result.UpToDate {
		t.Fatalf("Check() reported stale on unchanged workspace: %q", result.Reason)
	}

	if err := os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main // edited\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// Invalidate explicitly rather than waiting on the watcher's debounce.
	if _, err := client.Invalidate("src/main.go"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	result, err = client.Check()
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.UpToDate {
		t.Fatal("Check() reported up to date after edit")
	}
	want := "an input to task ':compile' has changed"
	if result.Reason != want {
		t.Errorf("Reason = %q, want %q", result.Reason, want)
	}
}

func TestDaemonSnapshotRead(t *testing.T) {
	client, _ := newTestDaemon(t)

	result, err := client.SnapshotRead(&SnapshotReadParams{Path: "src"})
	if err != nil {
		t.Fatalf("SnapshotRead() error = %v", err)
	}

	kinds := make(map[string]string)
	for _, entry := range result.Entries {
		kinds[entry.Path] = entry.Kind
	}
	if kinds[""] != "dir" {
		t.Errorf("root kind = %q, want dir", kinds[""])
	}
	if kinds["main.go"] != "file" {
		t.Errorf("main.go kind = %q, want file", kinds["main.go"])
	}

	for _, entry := range result.Entries {
		if entry.Kind == "file" && entry.Hash == "" {
			t.Errorf("file %q has no hash", entry.Path)
		}
	}
}

func TestDaemonSnapshotReadExtensionFilter(t *testing.T) {
	client, root := newTestDaemon(t)

	if err := os.WriteFile(filepath.Join(root, "src", "notes.txt"), []byte("notes"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Invalidate("src"); err != nil {
		t.Fatal(err)
	}

	result, err := client.SnapshotRead(&SnapshotReadParams{Path: "src", Extensions: []string{".go"}})
	if err != nil {
		t.Fatalf("SnapshotRead() error = %v", err)
	}
	for _, entry := range result.Entries {
		if entry.Path == "notes.txt" {
			t.Error("extension filter let notes.txt through")
		}
	}
}

func TestDaemonMethodNotFound(t *testing.T) {
	client, _ := newTestDaemon(t)

	err := client.call("bogus/method", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("call() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != ErrCodeMethodNotFound {
		t.Errorf("Code = %d, want %d", rpcErr.Code, ErrCodeMethodNotFound)
	}
}

func TestDaemonInvalidateRequiresPaths(t *testing.T) {
	client, _ := newTestDaemon(t)

	_, err := client.Invalidate()
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Invalidate() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != ErrCodeInvalidParams {
		t.Errorf("Code = %d, want %d", rpcErr.Code, ErrCodeInvalidParams)
	}
}

func TestDaemonShutdownViaRPC(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0755); err != nil {
		t.Fatal(err)
	}

	store := vfs.NewStore()
	paths := WorkspacePaths(root)
	handler := NewHandler(HandlerConfig{
		Store: store,
		NewHost: func() *fingerprint.StoreHost {
			return fingerprint.NewStoreHost(store, root)
		},
		ManifestPath: filepath.Join(root, DaemonDirName, "manifest.json"),
		Root:         root,
		Ignore:       []string{DaemonDirName},
	})
	server := NewServer(ServerConfig{Paths: paths, Version: "test", Handler: handler})

	done := make(chan error, 1)
	go func() { done <- server.Start(context.Background()) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(paths.Socket); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon socket never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}

	client, err := Connect(paths.Socket)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer func() { _ = client.Close() }()

	result, err := client.Shutdown()
	if err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if result.Message == "" {
		t.Error("Shutdown() returned empty message")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("server stopped with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after shutdown RPC")
	}

	if _, err := os.Stat(paths.Socket); !os.IsNotExist(err) {
		t.Error("socket file still present after shutdown")
	}
	if _, err := os.Stat(paths.PID); !os.IsNotExist(err) {
		t.Error("PID file still present after shutdown")
	}
}
