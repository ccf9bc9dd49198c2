package vfs

import (
	"path/filepath"
	"strings"
)

// PathFilter restricts a traversal or a filtered read to entries whose name
// it accepts. Filters never mutate cached state.
type PathFilter func(name string) bool

// AcceptAll passes every entry.
func AcceptAll(string) bool { return true }

// ExcludeNames rejects entries whose name matches any of the given names
// exactly. Useful for pruning directories like ".git" or "bazel-out".
func ExcludeNames(names ...string) PathFilter {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(name string) bool {
		_, excluded := set[name]
		return !excluded
	}
}

// ExcludePrefixes rejects entries whose name starts with any of the given
// prefixes.
func ExcludePrefixes(prefixes ...string) PathFilter {
	return func(name string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				return false
			}
		}
		return true
	}
}

// ExtensionFilter accepts entries without an extension (directories) and
// files carrying one of the given extensions (with leading dot).
func ExtensionFilter(exts ...string) PathFilter {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[e] = struct{}{}
	}
	return func(name string) bool {
		ext := filepath.Ext(name)
		if ext == "" {
			return true
		}
		_, ok := set[ext]
		return ok
	}
}

// AllOf combines filters; an entry passes only if every filter accepts it.
func AllOf(filters ...PathFilter) PathFilter {
	return func(name string) bool {
		for _, f := range filters {
			if !f(name) {
				return false
			}
		}
		return true
	}
}
