package fingerprint

import "context"

// Recorder builds the ordered fingerprint sequence of a completed build,
// using a Host to observe the current state of each declared input. The
// sequence is written once, at the end of a successful build, and consumed
// exactly once by Check at the start of the next attempt.
type Recorder struct {
	host    Host
	entries []Entry
}

// NewRecorder creates a recorder observing state through host.
func NewRecorder(host Host) *Recorder {
	return &Recorder{host: host}
}

// AddTaskInputs records the current combined hash of the file collection ref
// as the inputs of the named task.
func (r *Recorder) AddTaskInputs(ctx context.Context, taskPath, ref string) error {
	hash, err := r.host.FingerprintInputs(ctx, ref)
	if err != nil {
		return err
	}
	r.entries = append(r.entries, TaskInputsEntry{TaskPath: taskPath, InputsRef: ref, Hash: hash})
	return nil
}

// AddInputFile records the current content hash of path; a missing file is
// recorded as absent.
func (r *Recorder) AddInputFile(ctx context.Context, path string) error {
	hash, ok, err := r.host.HashFile(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		hash = ""
	}
	r.entries = append(r.entries, InputFileEntry{File: path, Hash: hash})
	return nil
}

// AddValueSource records the current value obtained from the described
// source.
func (r *Recorder) AddValueSource(d ValueSourceDescriptor) error {
	source, err := r.host.ValueSource(d)
	if err != nil {
		return err
	}
	value, err := source.Obtain()
	if err != nil {
		return err
	}
	r.entries = append(r.entries, ValueSourceEntry{Descriptor: d, Value: value})
	return nil
}

// AddInitScripts records the host's current init scripts with their hashes,
// preserving application order.
func (r *Recorder) AddInitScripts(ctx context.Context) error {
	scripts, err := r.host.InitScripts()
	if err != nil {
		return err
	}
	recorded := make([]InputFileEntry, 0, len(scripts))
	for _, script := range scripts {
		hash, ok, err := r.host.HashFile(ctx, script)
		if err != nil {
			return err
		}
		if !ok {
			hash = ""
		}
		recorded = append(recorded, InputFileEntry{File: script, Hash: hash})
	}
	r.entries = append(r.entries, InitScriptsEntry{Scripts: recorded})
	return nil
}

// Entries returns the recorded sequence in order.
func (r *Recorder) Entries() []Entry {
	return r.entries
}
