// Package fingerprint records build inputs and validates recorded
// fingerprints against live file-system state, deciding whether a previous
// build's outcome can be reused and, if not, why.
package fingerprint

// Entry is one recorded observation of a build input. It is one of
// TaskInputsEntry, InputFileEntry, ValueSourceEntry, or InitScriptsEntry;
// any other implementation is treated as corrupt input by the checker.
type Entry interface {
	// kind returns the stable manifest tag of the variant.
	kind() string
}

// TaskInputsEntry records the combined hash of a task's file-system inputs.
type TaskInputsEntry struct {
	// TaskPath identifies the task, e.g. ":compile".
	TaskPath string `json:"taskPath"`
	// InputsRef identifies the file collection forming the task's inputs,
	// resolvable by the Host.
	InputsRef string `json:"inputsRef"`
	// Hash is the combined fingerprint recorded for the collection.
	Hash string `json:"hash"`
}

func (TaskInputsEntry) kind() string { return "taskInputs" }

// InputFileEntry records the content hash of a single input file. An empty
// Hash records that the file did not exist.
type InputFileEntry struct {
	File string `json:"file"`
	Hash string `json:"hash,omitempty"`
}

func (InputFileEntry) kind() string { return "inputFile" }

// ValueSourceEntry records the value obtained from a value source, together
// with the descriptor needed to re-instantiate it.
type ValueSourceEntry struct {
	Descriptor ValueSourceDescriptor `json:"descriptor"`
	Value      string                `json:"value"`
}

func (ValueSourceEntry) kind() string { return "valueSource" }

// ValueSourceDescriptor identifies a value source by its declared type and
// the parameters it was constructed with.
type ValueSourceDescriptor struct {
	Type       string            `json:"type"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// InitScriptsEntry records the init scripts applied to a build, in
// application order. Comparison is positional: the order of the list is
// significant, not just its membership.
type InitScriptsEntry struct {
	Scripts []InputFileEntry `json:"scripts"`
}

func (InitScriptsEntry) kind() string { return "initScripts" }
