package vfs

import (
	"path/filepath"
	"strings"
	"sync"
)

// scopeLock serializes operations whose declared path scopes overlap. Two
// paths overlap when they are equal or one is an ancestor of the other.
// Scanning reads hold a shared scope; writes hold an exclusive scope.
// Operations on disjoint subtrees never contend.
type scopeLock struct {
	mu     sync.Mutex
	cond   *sync.Cond
	shared []string   // paths of in-flight scanning reads
	excl   [][]string // path sets of in-flight writes
}

func newScopeLock() *scopeLock {
	l := &scopeLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// acquireShared blocks while any in-flight write overlaps path.
func (l *scopeLock) acquireShared(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.anyExclusiveOverlap(path) {
		l.cond.Wait()
	}
	l.shared = append(l.shared, path)
}

func (l *scopeLock) releaseShared(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, p := range l.shared {
		if p == path {
			l.shared = append(l.shared[:i], l.shared[i+1:]...)
			break
		}
	}
	l.cond.Broadcast()
}

// acquireExclusive blocks while any in-flight read or write overlaps any of
// the given paths.
func (l *scopeLock) acquireExclusive(paths []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.anyOverlap(paths) {
		l.cond.Wait()
	}
	l.excl = append(l.excl, paths)
}

func (l *scopeLock) releaseExclusive(paths []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.excl {
		if sameStrings(l.excl[i], paths) {
			l.excl = append(l.excl[:i], l.excl[i+1:]...)
			break
		}
	}
	l.cond.Broadcast()
}

func (l *scopeLock) anyExclusiveOverlap(path string) bool {
	for _, scope := range l.excl {
		for _, p := range scope {
			if pathsOverlap(p, path) {
				return true
			}
		}
	}
	return false
}

func (l *scopeLock) anyOverlap(paths []string) bool {
	for _, p := range paths {
		if l.anyExclusiveOverlap(p) {
			return true
		}
		for _, r := range l.shared {
			if pathsOverlap(p, r) {
				return true
			}
		}
	}
	return false
}

// pathsOverlap reports whether a and b name the same location or one is an
// ancestor of the other. Both must be cleaned absolute paths.
func pathsOverlap(a, b string) bool {
	return a == b || isAncestor(a, b) || isAncestor(b, a)
}

func isAncestor(dir, path string) bool {
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(path, dir)
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
