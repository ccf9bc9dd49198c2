package vfs

import "path"

// VisitResult tells a traversal whether to keep going.
type VisitResult int

const (
	// VisitContinue proceeds to the next entry.
	VisitContinue VisitResult = iota
	// VisitStop ends the traversal early.
	VisitStop
)

// HierarchyVisitor is invoked once per entry while walking a snapshot
// subtree. relPath is the slash-separated path of the entry relative to the
// traversal root; it is empty for the root itself. Returning VisitStop cuts
// the walk short.
type HierarchyVisitor func(snap Snapshot, relPath string) VisitResult

// Walk visits snap and every entry beneath it, parents before children,
// sibling entries in name order.
func Walk(snap Snapshot, visit HierarchyVisitor) {
	walk(snap, "", visit)
}

func walk(snap Snapshot, relPath string, visit HierarchyVisitor) VisitResult {
	if visit(snap, relPath) == VisitStop {
		return VisitStop
	}
	dir, ok := snap.(*DirectorySnapshot)
	if !ok {
		return VisitContinue
	}
	for _, name := range dir.EntryNames() {
		child, _ := dir.Entry(name)
		if walk(child, path.Join(relPath, name), visit) == VisitStop {
			return VisitStop
		}
	}
	return VisitContinue
}
