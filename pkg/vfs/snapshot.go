// Package vfs implements a hierarchical cache of file-system state for
// incremental builds. A Store serves immutable Snapshots of files and
// directories, amortizing disk scans across readers, and invalidates
// precisely the subtrees affected by scoped writes.
package vfs

import (
	"path/filepath"

	"github.com/albertocavalcante/buildvfs/pkg/util"
)

// Snapshot describes the state of one file-system location at the time it
// was captured. It is one of FileSnapshot, DirectorySnapshot, or
// MissingSnapshot, and is immutable once constructed.
type Snapshot interface {
	// Path returns the absolute path this snapshot describes.
	Path() string

	// Name returns the last path segment.
	Name() string

	snapshot()
}

// FileSnapshot records a regular file and the hash of its content.
type FileSnapshot struct {
	path string
	hash string
}

// NewFileSnapshot creates a snapshot of a regular file.
func NewFileSnapshot(path, contentHash string) *FileSnapshot {
	return &FileSnapshot{path: filepath.Clean(path), hash: contentHash}
}

func (s *FileSnapshot) Path() string { return s.path }
func (s *FileSnapshot) Name() string { return filepath.Base(s.path) }

// Hash returns the xxHash64 hex digest of the file content.
func (s *FileSnapshot) Hash() string { return s.hash }

func (s *FileSnapshot) snapshot() {}

// DirectorySnapshot records a directory and the snapshots of its entries,
// keyed by entry name.
type DirectorySnapshot struct {
	path     string
	names    []string // sorted
	children map[string]Snapshot
}

// NewDirectorySnapshot creates a snapshot of a directory from its children.
// The children map is copied; entries iterate in name order.
func NewDirectorySnapshot(path string, children map[string]Snapshot) *DirectorySnapshot {
	copied := make(map[string]Snapshot, len(children))
	for name, child := range children {
		copied[name] = child
	}
	return &DirectorySnapshot{path: filepath.Clean(path), names: util.SortedKeys(copied), children: copied}
}

func (s *DirectorySnapshot) Path() string { return s.path }
func (s *DirectorySnapshot) Name() string { return filepath.Base(s.path) }

// EntryNames returns the names of the direct entries in sorted order.
// The returned slice must not be modified.
func (s *DirectorySnapshot) EntryNames() []string { return s.names }

// Entry returns the snapshot of the named direct entry.
func (s *DirectorySnapshot) Entry(name string) (Snapshot, bool) {
	child, ok := s.children[name]
	return child, ok
}

func (s *DirectorySnapshot) snapshot() {}

// MissingSnapshot records that no file or directory exists at a path.
type MissingSnapshot struct {
	path string
}

// NewMissingSnapshot creates a snapshot of a missing location.
func NewMissingSnapshot(path string) *MissingSnapshot {
	return &MissingSnapshot{path: filepath.Clean(path)}
}

func (s *MissingSnapshot) Path() string { return s.path }
func (s *MissingSnapshot) Name() string { return filepath.Base(s.path) }

func (s *MissingSnapshot) snapshot() {}

// find descends into a snapshot along relative path segments. Descending
// through a file or a missing location yields a missing snapshot rather
// than an error.
func find(snap Snapshot, segments []string) Snapshot {
	for i, seg := range segments {
		dir, ok := snap.(*DirectorySnapshot)
		if !ok {
			return NewMissingSnapshot(filepath.Join(append([]string{snap.Path()}, segments[i:]...)...))
		}
		child, ok := dir.Entry(seg)
		if !ok {
			return NewMissingSnapshot(filepath.Join(append([]string{dir.path}, segments[i:]...)...))
		}
		snap = child
	}
	return snap
}

// filterSnapshot derives a view of snap restricted to entries whose name
// passes filter, applied recursively. It returns false when the root entry
// itself is excluded. The input snapshot is never modified.
func filterSnapshot(snap Snapshot, filter PathFilter) (Snapshot, bool) {
	if !filter(snap.Name()) {
		return nil, false
	}
	dir, ok := snap.(*DirectorySnapshot)
	if !ok {
		return snap, true
	}
	children := make(map[string]Snapshot)
	for _, name := range dir.names {
		child, _ := dir.Entry(name)
		if filtered, ok := filterSnapshot(child, filter); ok {
			children[name] = filtered
		}
	}
	return NewDirectorySnapshot(dir.path, children), true
}
