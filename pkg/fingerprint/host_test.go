package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/albertocavalcante/buildvfs/pkg/vfs"
)

func newWorkspaceHost(t *testing.T) (*StoreHost, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	for path, content := range map[string]string{
		filepath.Join(dir, "src", "main.go"): "package main",
		filepath.Join(dir, "src", "util.go"): "package main // util",
		filepath.Join(dir, "build.cfg"):      "opts",
	} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return NewStoreHost(vfs.NewStore(), dir), dir
}

func TestStoreHostHashFile(t *testing.T) {
	host, dir := newWorkspaceHost(t)
	ctx := context.Background()

	hash, ok, err := host.HashFile(ctx, filepath.Join(dir, "build.cfg"))
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	if !ok {
		t.Fatal("HashFile() ok = false for an existing file")
	}
	if want := vfs.HashBytes([]byte("opts")); hash != want {
		t.Errorf("HashFile() = %q, want %q", hash, want)
	}

	_, ok, err = host.HashFile(ctx, filepath.Join(dir, "nope"))
	if err != nil {
		t.Fatalf("HashFile() of missing path error = %v", err)
	}
	if ok {
		t.Error("HashFile() ok = true for a missing path")
	}

	// Directories hash as their combined subtree fingerprint.
	dirHash, ok, err := host.HashFile(ctx, filepath.Join(dir, "src"))
	if err != nil || !ok {
		t.Fatalf("HashFile() of directory = (%v, %v)", ok, err)
	}
	if dirHash == "" {
		t.Error("directory hash is empty")
	}
}

func TestStoreHostFingerprintInputs(t *testing.T) {
	host, dir := newWorkspaceHost(t)
	ctx := context.Background()
	host.RegisterInputs("srcs", []string{filepath.Join(dir, "src")})

	first, err := host.FingerprintInputs(ctx, "srcs")
	if err != nil {
		t.Fatalf("FingerprintInputs() error = %v", err)
	}

	// Memoized for the lifetime of the host.
	again, err := host.FingerprintInputs(ctx, "srcs")
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Error("FingerprintInputs() is not stable within one host")
	}

	// A fresh host over the changed tree observes a different fingerprint.
	target := filepath.Join(dir, "src", "main.go")
	if err := os.WriteFile(target, []byte("package main // edited"), 0o644); err != nil {
		t.Fatal(err)
	}
	fresh := NewStoreHost(vfs.NewStore(), dir)
	fresh.RegisterInputs("srcs", []string{filepath.Join(dir, "src")})
	changed, err := fresh.FingerprintInputs(ctx, "srcs")
	if err != nil {
		t.Fatal(err)
	}
	if changed == first {
		t.Error("FingerprintInputs() did not change after an input edit")
	}
}

func TestStoreHostFingerprintUnknownRef(t *testing.T) {
	host, _ := newWorkspaceHost(t)
	if _, err := host.FingerprintInputs(context.Background(), "nope"); err == nil {
		t.Error("FingerprintInputs() should fail for an unregistered collection")
	}
}

func TestStoreHostDisplayName(t *testing.T) {
	host, dir := newWorkspaceHost(t)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"inside base", filepath.Join(dir, "src", "main.go"), filepath.Join("src", "main.go")},
		{"outside base", "/etc/hosts", "/etc/hosts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := host.DisplayName(tt.path); got != tt.want {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestStoreHostValueSourceRegistry(t *testing.T) {
	host, _ := newWorkspaceHost(t)
	host.RegisterValueSource(EnvValueSourceType, NewEnvValueSource)
	t.Setenv("BUILDVFS_TEST_ENV", "one")

	source, err := host.ValueSource(ValueSourceDescriptor{
		Type:       EnvValueSourceType,
		Parameters: map[string]string{"name": "BUILDVFS_TEST_ENV"},
	})
	if err != nil {
		t.Fatalf("ValueSource() error = %v", err)
	}

	value, err := source.Obtain()
	if err != nil {
		t.Fatal(err)
	}
	if value != "one" {
		t.Errorf("Obtain() = %q, want %q", value, "one")
	}

	d, ok := source.(Describable)
	if !ok {
		t.Fatal("env value source should describe itself")
	}
	if want := "environment variable 'BUILDVFS_TEST_ENV'"; d.Description() != want {
		t.Errorf("Description() = %q, want %q", d.Description(), want)
	}

	if _, err := host.ValueSource(ValueSourceDescriptor{Type: "unregistered"}); err == nil {
		t.Error("ValueSource() should fail for an unregistered type")
	}
}

func TestRecorderThenCheckRoundTrip(t *testing.T) {
	host, dir := newWorkspaceHost(t)
	ctx := context.Background()
	host.RegisterInputs("srcs", []string{filepath.Join(dir, "src")})
	host.RegisterValueSource(EnvValueSourceType, NewEnvValueSource)
	host.SetInitScripts([]string{filepath.Join(dir, "build.cfg")})
	t.Setenv("BUILDVFS_TEST_ENV", "steady")

	rec := NewRecorder(host)
	if err := rec.AddTaskInputs(ctx, ":compile", "srcs"); err != nil {
		t.Fatal(err)
	}
	if err := rec.AddInputFile(ctx, filepath.Join(dir, "build.cfg")); err != nil {
		t.Fatal(err)
	}
	if err := rec.AddValueSource(ValueSourceDescriptor{
		Type:       EnvValueSourceType,
		Parameters: map[string]string{"name": "BUILDVFS_TEST_ENV"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := rec.AddInitScripts(ctx); err != nil {
		t.Fatal(err)
	}

	// Nothing changed: a fresh host over the same tree reports full reuse.
	fresh := NewStoreHost(vfs.NewStore(), dir)
	fresh.RegisterInputs("srcs", []string{filepath.Join(dir, "src")})
	fresh.RegisterValueSource(EnvValueSourceType, NewEnvValueSource)
	fresh.SetInitScripts([]string{filepath.Join(dir, "build.cfg")})

	reason, err := Check(ctx, &sliceSource{entries: rec.Entries()}, fresh)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if reason != "" {
		t.Errorf("Check() = %q, want reusable", reason)
	}

	// Edit one source file and check again via a manifest round trip.
	if err := os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("edited"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := SaveManifest(path, rec.Entries()); err != nil {
		t.Fatal(err)
	}
	reader, closer, err := OpenManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = closer.Close() }()

	stale := NewStoreHost(vfs.NewStore(), dir)
	stale.RegisterInputs("srcs", []string{filepath.Join(dir, "src")})
	stale.RegisterValueSource(EnvValueSourceType, NewEnvValueSource)
	stale.SetInitScripts([]string{filepath.Join(dir, "build.cfg")})

	reason, err = Check(ctx, reader, stale)
	if err != nil {
		t.Fatal(err)
	}
	if want := "an input to task ':compile' has changed"; reason != want {
		t.Errorf("Check() = %q, want %q", reason, want)
	}
}
