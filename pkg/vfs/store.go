package vfs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Store is a hierarchical cache of file-system state. Reads are served from
// cached snapshots when one covers the requested path and fall back to a
// disk scan otherwise; scoped writes invalidate exactly the subtrees they
// touch. A Store is safe for concurrent use: cache hits are pure in-memory
// lookups, concurrent misses for the same path are coalesced into a single
// scan, and a write serializes only against reads and writes whose declared
// paths overlap.
type Store struct {
	scanner Scanner
	group   singleflight.Group
	locks   *scopeLock

	mu   sync.RWMutex // guards the node tree
	root *node
}

// node is one level of the store's prefix tree, addressed by path segment.
// A node may hold a snapshot covering its whole subtree, or be empty
// (never scanned, or invalidated). A node holding a snapshot has no child
// nodes; the snapshot is authoritative for everything beneath it.
type node struct {
	snap     Snapshot
	children map[string]*node
}

// NewStore creates a store reading from the local file system.
func NewStore() *Store {
	return NewStoreWithScanner(OSScanner{})
}

// NewStoreWithScanner creates a store using a custom scanner. Tests use this
// to count or forbid disk access.
func NewStoreWithScanner(scanner Scanner) *Store {
	return &Store{
		scanner: scanner,
		locks:   newScopeLock(),
		root:    &node{},
	}
}

// Read returns the snapshot of path, serving it from cache when a cached
// snapshot already covers path and scanning the disk otherwise. A scan
// result is cached and not repeated until a write invalidates it.
func (s *Store) Read(ctx context.Context, path string) (Snapshot, error) {
	p, err := normalize(path)
	if err != nil {
		return nil, err
	}

	if snap, ok := s.cached(p); ok {
		return snap, nil
	}

	v, err, _ := s.group.Do(p, func() (interface{}, error) {
		s.locks.acquireShared(p)
		defer s.locks.releaseShared(p)

		// A concurrent reader or an enclosing scan may have filled the
		// cache while we waited.
		if snap, ok := s.cached(p); ok {
			return snap, nil
		}

		snap, err := s.scanner.Scan(ctx, p)
		if err != nil {
			return nil, err
		}
		s.insert(p, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Snapshot), nil
}

// ReadFiltered returns the snapshot of path restricted to entries whose
// name passes filter, applied recursively. It returns nil when the root
// entry itself is excluded, which is distinct from a MissingSnapshot.
// The result is derived from an existing cached snapshot when one covers
// path; only otherwise does it scan the disk. Filtered results, including
// the unfiltered scan they derive from, are never written into the cache.
func (s *Store) ReadFiltered(ctx context.Context, path string, filter PathFilter) (Snapshot, error) {
	p, err := normalize(path)
	if err != nil {
		return nil, err
	}

	if snap, ok := s.cached(p); ok {
		filtered, ok := filterSnapshot(snap, filter)
		if !ok {
			return nil, nil
		}
		return filtered, nil
	}

	s.locks.acquireShared(p)
	defer s.locks.releaseShared(p)

	if snap, ok := s.cached(p); ok {
		filtered, ok := filterSnapshot(snap, filter)
		if !ok {
			return nil, nil
		}
		return filtered, nil
	}

	snap, err := s.scanner.Scan(ctx, p)
	if err != nil {
		return nil, err
	}
	filtered, ok := filterSnapshot(snap, filter)
	if !ok {
		return nil, nil
	}
	return filtered, nil
}

// Write executes mutate, which performs the actual file-system change, and
// invalidates the cache for every given path and its ancestor chain as part
// of the same scoped operation. The write serializes against concurrent
// reads and writes whose paths overlap the given set; disjoint subtrees
// proceed without contention and keep their cached snapshots. The cache is
// invalidated even when mutate fails, since the file system may have been
// partially changed. Returns the error of mutate.
func (s *Store) Write(paths []string, mutate func() error) error {
	cleaned := make([]string, 0, len(paths))
	for _, path := range paths {
		p, err := normalize(path)
		if err != nil {
			return err
		}
		cleaned = append(cleaned, p)
	}

	s.locks.acquireExclusive(cleaned)
	defer s.locks.releaseExclusive(cleaned)

	var mutateErr error
	if mutate != nil {
		mutateErr = mutate()
	}

	s.mu.Lock()
	for _, p := range cleaned {
		s.root.invalidate(segments(p))
	}
	s.mu.Unlock()

	return mutateErr
}

// Invalidate discards cached state for the given paths and their ancestor
// chains without performing a mutation. Used when the file system changed
// behind the store's back, e.g. on a watcher event.
func (s *Store) Invalidate(paths ...string) {
	_ = s.Write(paths, nil)
}

// cached looks for a node on the path from the root to p holding a snapshot
// that covers p, and derives p's snapshot from it. Pure in-memory lookup.
func (s *Store) cached(p string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.root
	segs := segments(p)
	for i := 0; ; i++ {
		if n.snap != nil {
			return find(n.snap, segs[i:]), true
		}
		if i == len(segs) {
			return nil, false
		}
		child, ok := n.children[segs[i]]
		if !ok {
			return nil, false
		}
		n = child
	}
}

// insert caches snap at the node for p. Any child nodes become redundant
// and are dropped: the snapshot is authoritative for the whole subtree.
func (s *Store) insert(p string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.root
	for _, seg := range segments(p) {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[seg]
		if !ok {
			child = &node{}
			n.children[seg] = child
		}
		n = child
	}
	n.snap = snap
	n.children = nil
}

// invalidate discards cached state along the given segment chain. When a
// node on the chain holds a cached directory snapshot, its children are
// first pushed down into their own nodes so that sibling subtrees stay
// servable from cache; only the invalidated chain itself is discarded.
func (n *node) invalidate(segs []string) {
	if len(segs) == 0 {
		n.snap = nil
		n.children = nil
		return
	}

	if n.snap != nil {
		if dir, ok := n.snap.(*DirectorySnapshot); ok {
			if n.children == nil {
				n.children = make(map[string]*node, len(dir.EntryNames()))
			}
			for _, name := range dir.EntryNames() {
				child, _ := dir.Entry(name)
				if _, exists := n.children[name]; !exists {
					n.children[name] = &node{snap: child}
				}
			}
		}
		n.snap = nil
	}

	child, ok := n.children[segs[0]]
	if !ok {
		return
	}
	child.invalidate(segs[1:])
	if child.snap == nil && len(child.children) == 0 {
		delete(n.children, segs[0])
	}
}

// normalize cleans path and makes it absolute.
func normalize(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	return p, nil
}

// segments splits a cleaned absolute path into its segments; the root path
// yields none.
func segments(p string) []string {
	trimmed := strings.Trim(p, string(filepath.Separator))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, string(filepath.Separator))
}
