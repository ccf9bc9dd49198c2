package fingerprint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"

	"github.com/albertocavalcante/buildvfs/pkg/vfs"
)

// Host supplies the live state a fingerprint check compares against:
// hashing, display names, init scripts, and value-source instantiation.
type Host interface {
	// InitScripts returns the current init scripts in application order.
	InitScripts() ([]string, error)

	// FingerprintInputs computes the combined hash of the file collection
	// identified by ref.
	FingerprintInputs(ctx context.Context, ref string) (string, error)

	// HashFile returns the current content hash of path. ok is false when
	// nothing exists at path.
	HashFile(ctx context.Context, path string) (hash string, ok bool, err error)

	// DisplayName renders path for humans.
	DisplayName(path string) string

	// ValueSource re-instantiates the value source described by d.
	ValueSource(d ValueSourceDescriptor) (ValueSource, error)
}

// ValueSource supplies a build input value computed outside the file system.
type ValueSource interface {
	// Obtain computes the current value.
	Obtain() (string, error)
}

// Describable is optionally implemented by value sources that can name
// themselves in invalidation reasons.
type Describable interface {
	// Description names the source, e.g. "environment variable 'CI'".
	Description() string
}

// ValueSourceFactory builds a value source from recorded parameters.
type ValueSourceFactory func(params map[string]string) (ValueSource, error)

// fingerprintMemoSize bounds the per-host memo of collection fingerprints.
const fingerprintMemoSize = 512

// StoreHost is a Host backed by a vfs.Store for all file hashing. Collection
// fingerprints are memoized for the lifetime of the host, so a host should
// live for one check attempt. Construct with NewStoreHost.
type StoreHost struct {
	store       *vfs.Store
	base        string // display names are rendered relative to base
	scripts     []string
	collections map[string][]string
	factories   map[string]ValueSourceFactory
	memo        *lru.Cache
}

// NewStoreHost creates a host reading live state through store. base is the
// directory display names are rendered relative to.
func NewStoreHost(store *vfs.Store, base string) *StoreHost {
	memo, err := lru.New(fingerprintMemoSize)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &StoreHost{
		store:       store,
		base:        base,
		collections: make(map[string][]string),
		factories:   make(map[string]ValueSourceFactory),
		memo:        memo,
	}
}

// SetInitScripts sets the current init scripts, in application order.
func (h *StoreHost) SetInitScripts(paths []string) {
	h.scripts = append([]string(nil), paths...)
}

// RegisterInputs binds a file-collection reference to its root paths.
func (h *StoreHost) RegisterInputs(ref string, paths []string) {
	h.collections[ref] = append([]string(nil), paths...)
}

// RegisterValueSource binds a declared type name to a factory.
func (h *StoreHost) RegisterValueSource(typeName string, factory ValueSourceFactory) {
	h.factories[typeName] = factory
}

// InitScripts implements Host.
func (h *StoreHost) InitScripts() ([]string, error) {
	return h.scripts, nil
}

// FingerprintInputs implements Host. The combined hash covers, for every
// root of the collection in sorted order, each file's path relative to the
// root and its content hash; it changes when any file is added, removed,
// renamed, or edited.
func (h *StoreHost) FingerprintInputs(ctx context.Context, ref string) (string, error) {
	if cached, ok := h.memo.Get(ref); ok {
		return cached.(string), nil
	}

	paths, ok := h.collections[ref]
	if !ok {
		return "", fmt.Errorf("unknown file collection %q", ref)
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	digest := xxhash.New()
	for _, path := range sorted {
		snap, err := h.store.Read(ctx, path)
		if err != nil {
			return "", err
		}
		if err := digestSnapshot(digest, snap); err != nil {
			return "", err
		}
	}

	hash := fmt.Sprintf("%016x", digest.Sum64())
	h.memo.Add(ref, hash)
	return hash, nil
}

// digestSnapshot feeds a snapshot subtree into a running digest.
func digestSnapshot(digest *xxhash.Digest, snap vfs.Snapshot) error {
	var werr error
	vfs.Walk(snap, func(s vfs.Snapshot, relPath string) vfs.VisitResult {
		switch s := s.(type) {
		case *vfs.FileSnapshot:
			_, werr = fmt.Fprintf(digest, "f %s %s\n", relPath, s.Hash())
		case *vfs.DirectorySnapshot:
			_, werr = fmt.Fprintf(digest, "d %s\n", relPath)
		case *vfs.MissingSnapshot:
			_, werr = fmt.Fprintf(digest, "m %s\n", relPath)
		}
		if werr != nil {
			return vfs.VisitStop
		}
		return vfs.VisitContinue
	})
	return werr
}

// HashFile implements Host. A directory hashes as the combined fingerprint
// of its subtree.
func (h *StoreHost) HashFile(ctx context.Context, path string) (string, bool, error) {
	snap, err := h.store.Read(ctx, path)
	if err != nil {
		return "", false, err
	}
	switch s := snap.(type) {
	case *vfs.FileSnapshot:
		return s.Hash(), true, nil
	case *vfs.DirectorySnapshot:
		digest := xxhash.New()
		if err := digestSnapshot(digest, s); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("%016x", digest.Sum64()), true, nil
	default:
		return "", false, nil
	}
}

// DisplayName implements Host, preferring a path relative to the host base.
func (h *StoreHost) DisplayName(path string) string {
	if h.base == "" {
		return path
	}
	rel, err := filepath.Rel(h.base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// ValueSource implements Host.
func (h *StoreHost) ValueSource(d ValueSourceDescriptor) (ValueSource, error) {
	factory, ok := h.factories[d.Type]
	if !ok {
		return nil, fmt.Errorf("no value source registered for type %q", d.Type)
	}
	source, err := factory(d.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate value source %q: %w", d.Type, err)
	}
	return source, nil
}

// EnvValueSource reads an environment variable. It describes itself, so a
// change yields "environment variable 'NAME' has changed".
type EnvValueSource struct {
	Name string
}

// NewEnvValueSource is a ValueSourceFactory for EnvValueSource; it expects a
// "name" parameter.
func NewEnvValueSource(params map[string]string) (ValueSource, error) {
	name, ok := params["name"]
	if !ok || name == "" {
		return nil, fmt.Errorf("env value source requires a %q parameter", "name")
	}
	return EnvValueSource{Name: name}, nil
}

// EnvValueSourceType is the declared type name of EnvValueSource.
const EnvValueSourceType = "env"

func (s EnvValueSource) Obtain() (string, error) {
	return os.Getenv(s.Name), nil
}

func (s EnvValueSource) Description() string {
	return fmt.Sprintf("environment variable '%s'", s.Name)
}
