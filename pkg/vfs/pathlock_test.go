package vfs

import (
	"testing"
	"time"
)

func TestPathsOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"same path", "/work/a", "/work/a", true},
		{"ancestor", "/work", "/work/a/b", true},
		{"descendant", "/work/a/b", "/work", true},
		{"siblings", "/work/a", "/work/b", false},
		{"shared prefix not ancestor", "/work/ab", "/work/a", false},
		{"root overlaps everything", "/", "/work/a", true},
		{"disjoint trees", "/work", "/other", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pathsOverlap(tt.a, tt.b); got != tt.want {
				t.Errorf("pathsOverlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestExclusiveWaitsForOverlappingShared(t *testing.T) {
	l := newScopeLock()
	l.acquireShared("/work/a")

	acquired := make(chan struct{})
	go func() {
		l.acquireExclusive([]string{"/work"})
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("exclusive scope acquired while an overlapping read was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	l.releaseShared("/work/a")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("exclusive scope not acquired after read released")
	}
	l.releaseExclusive([]string{"/work"})
}

func TestDisjointScopesDoNotContend(t *testing.T) {
	l := newScopeLock()
	l.acquireExclusive([]string{"/work/a"})
	defer l.releaseExclusive([]string{"/work/a"})

	acquired := make(chan struct{})
	go func() {
		l.acquireShared("/work/b")
		l.acquireExclusive([]string{"/other"})
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("disjoint scopes blocked on an unrelated write")
	}
	l.releaseExclusive([]string{"/other"})
	l.releaseShared("/work/b")
}

func TestSharedWaitsForOverlappingExclusive(t *testing.T) {
	l := newScopeLock()
	l.acquireExclusive([]string{"/work"})

	acquired := make(chan struct{})
	go func() {
		l.acquireShared("/work/a")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("read acquired while an overlapping write was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	l.releaseExclusive([]string{"/work"})
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("read not acquired after write released")
	}
	l.releaseShared("/work/a")
}
