package vfs

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// Scanner captures the current on-disk state of a location. Implementations
// must represent a nonexistent location as a MissingSnapshot, not an error.
type Scanner interface {
	Scan(ctx context.Context, path string) (Snapshot, error)
}

// OSScanner reads state from the local file system, hashing file contents
// with xxHash64.
type OSScanner struct{}

// Scan stats path and builds a snapshot: a single stat for a file or a
// missing location, a recursive listing for a directory.
func (sc OSScanner) Scan(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return NewMissingSnapshot(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.IsDir() {
		hash, err := HashFile(path)
		if err != nil {
			return nil, err
		}
		return NewFileSnapshot(path, hash), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}

	children := make(map[string]Snapshot, len(entries))
	for _, entry := range entries {
		child, err := sc.Scan(ctx, filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}
		children[entry.Name()] = child
	}
	return NewDirectorySnapshot(path, children), nil
}

// HashFile computes xxHash64 of file contents, returns hex string.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes xxHash64 of bytes, returns hex string.
func HashBytes(data []byte) string {
	h := xxhash.Sum64(data)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h)
	return hex.EncodeToString(buf[:])
}
