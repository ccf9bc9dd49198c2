package fingerprint

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ManifestVersion is the current version of the manifest format.
const ManifestVersion = 1

// ErrUnknownEntry marks a manifest record of an unrecognized variant. The
// checker treats it as fatal: a sequence with unknown entries may come from
// an incompatible format and must never be assumed reusable.
var ErrUnknownEntry = errors.New("unknown fingerprint entry")

// manifestHeader is the first line of a manifest.
type manifestHeader struct {
	Version int `json:"version"`
}

// record is the wire form of one entry: a variant tag plus its payload.
type record struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Source yields recorded fingerprint entries one at a time, in recorded
// order. Next returns io.EOF after the last entry. Implementations may
// block on I/O; they must never hold more than the entry being returned.
type Source interface {
	Next() (Entry, error)
}

// Reader is a pull-based Source decoding a manifest stream one record at a
// time, so arbitrarily large recorded input sets never reside in memory at
// once.
type Reader struct {
	dec *json.Decoder
}

// NewReader wraps a manifest stream, validating its header.
func NewReader(r io.Reader) (*Reader, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	var hdr manifestHeader
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("failed to read manifest header: %w", err)
	}
	if hdr.Version > ManifestVersion {
		return nil, fmt.Errorf("manifest version %d is newer than supported version %d", hdr.Version, ManifestVersion)
	}
	return &Reader{dec: dec}, nil
}

// Next decodes the next recorded entry. It returns io.EOF at the end of the
// sequence and ErrUnknownEntry for a record of an unrecognized variant.
func (r *Reader) Next() (Entry, error) {
	var rec record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode manifest record: %w", err)
	}
	return decodeRecord(rec)
}

func decodeRecord(rec record) (Entry, error) {
	var entry Entry
	switch rec.Kind {
	case TaskInputsEntry{}.kind():
		entry = new(TaskInputsEntry)
	case InputFileEntry{}.kind():
		entry = new(InputFileEntry)
	case ValueSourceEntry{}.kind():
		entry = new(ValueSourceEntry)
	case InitScriptsEntry{}.kind():
		entry = new(InitScriptsEntry)
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownEntry, rec.Kind)
	}
	if err := json.Unmarshal(rec.Data, entry); err != nil {
		return nil, fmt.Errorf("failed to decode %s entry: %w", rec.Kind, err)
	}
	return deref(entry), nil
}

// deref returns the value form of a decoded entry pointer, so the checker
// can type-switch on value types.
func deref(e Entry) Entry {
	switch e := e.(type) {
	case *TaskInputsEntry:
		return *e
	case *InputFileEntry:
		return *e
	case *ValueSourceEntry:
		return *e
	case *InitScriptsEntry:
		return *e
	default:
		return e
	}
}

// Writer appends entries to a manifest stream.
type Writer struct {
	enc *json.Encoder
}

// NewWriter starts a manifest on w, writing the version header.
func NewWriter(w io.Writer) (*Writer, error) {
	enc := json.NewEncoder(w)
	if err := enc.Encode(manifestHeader{Version: ManifestVersion}); err != nil {
		return nil, fmt.Errorf("failed to write manifest header: %w", err)
	}
	return &Writer{enc: enc}, nil
}

// Append writes one entry.
func (w *Writer) Append(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode %s entry: %w", entry.kind(), err)
	}
	if err := w.enc.Encode(record{Kind: entry.kind(), Data: data}); err != nil {
		return fmt.Errorf("failed to write %s entry: %w", entry.kind(), err)
	}
	return nil
}

// SaveManifest writes the ordered entries to path atomically, creating the
// parent directory if needed. The file is written to a temp name first and
// renamed into place.
func SaveManifest(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}

	err = func() error {
		w, err := NewWriter(f)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := w.Append(entry); err != nil {
				return err
			}
		}
		return f.Sync()
	}()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}
	return nil
}

// OpenManifest opens a recorded manifest for single-pass consumption. The
// caller owns closing the returned closer once the check completes.
func OpenManifest(path string) (*Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return r, f, nil
}
