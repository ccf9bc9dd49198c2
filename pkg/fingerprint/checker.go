package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Check validates a recorded fingerprint sequence against live state. It
// pulls entries from src one at a time, in recorded order, and compares
// each against the state supplied by host. The first mismatch short-circuits
// the pass: no further entries are read and no further hashing is performed.
//
// The returned reason explains why the recorded build cannot be reused; an
// empty reason with a nil error means every recorded input still matches
// and the outcome is fully reusable. An entry of an unknown variant and any
// I/O failure while hashing are fatal and returned as an error, never as a
// silent reuse. Check is read-only with respect to both src and live state,
// so an aborted check can be discarded safely.
func Check(ctx context.Context, src Source, host Host) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		entry, err := src.Next()
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil {
			return "", err
		}

		reason, err := checkEntry(ctx, entry, host)
		if err != nil {
			return "", err
		}
		if reason != "" {
			return reason, nil
		}
	}
}

func checkEntry(ctx context.Context, entry Entry, host Host) (string, error) {
	switch e := entry.(type) {
	case TaskInputsEntry:
		return checkTaskInputs(ctx, e, host)
	case InputFileEntry:
		return checkInputFile(ctx, e, host)
	case ValueSourceEntry:
		return checkValueSource(e, host)
	case InitScriptsEntry:
		return checkInitScripts(ctx, e, host)
	default:
		// A variant this build doesn't know cannot be validated; assuming
		// reuse on ambiguous input would be unsound.
		return "", fmt.Errorf("%w: %T", ErrUnknownEntry, entry)
	}
}

func checkTaskInputs(ctx context.Context, e TaskInputsEntry, host Host) (string, error) {
	current, err := host.FingerprintInputs(ctx, e.InputsRef)
	if err != nil {
		return "", err
	}
	if current != e.Hash {
		return fmt.Sprintf("an input to task '%s' has changed", e.TaskPath), nil
	}
	return "", nil
}

func checkInputFile(ctx context.Context, e InputFileEntry, host Host) (string, error) {
	current, ok, err := host.HashFile(ctx, e.File)
	if err != nil {
		return "", err
	}
	recorded := e.Hash != ""
	if ok != recorded || current != e.Hash {
		return fmt.Sprintf("file '%s' has changed", host.DisplayName(e.File)), nil
	}
	return "", nil
}

func checkValueSource(e ValueSourceEntry, host Host) (string, error) {
	source, err := host.ValueSource(e.Descriptor)
	if err != nil {
		return "", err
	}
	current, err := source.Obtain()
	if err != nil {
		return "", err
	}
	if current == e.Value {
		return "", nil
	}
	if d, ok := source.(Describable); ok && d.Description() != "" {
		return d.Description() + " has changed", nil
	}
	return fmt.Sprintf("a build input of type '%s' has changed", e.Descriptor.Type), nil
}

// checkInitScripts compares the recorded init-script list against the
// current one positionally. It first finds the longest prefix where the
// current script's live hash matches the recorded hash, then classifies the
// divergence as an added suffix, a removed suffix, an in-place content
// change, or a different script at the diverging position.
func checkInitScripts(ctx context.Context, e InitScriptsEntry, host Host) (string, error) {
	current, err := host.InitScripts()
	if err != nil {
		return "", err
	}
	recorded := e.Scripts

	k := 0
	for k < len(recorded) && k < len(current) {
		hash, ok, err := host.HashFile(ctx, current[k])
		if err != nil {
			return "", err
		}
		rec := recorded[k]
		if !ok || rec.Hash == "" || hash != rec.Hash {
			break
		}
		k++
	}

	switch {
	case k == len(recorded) && k == len(current):
		return "", nil

	case k == len(recorded):
		added := current[k:]
		name := host.DisplayName(added[0])
		if len(added) == 1 {
			return fmt.Sprintf("init script '%s' has been added", name), nil
		}
		return fmt.Sprintf("init script '%s' and %d more have been added", name, len(added)-1), nil

	case k == len(current):
		removed := recorded[k:]
		name := host.DisplayName(removed[0].File)
		if len(removed) == 1 {
			return fmt.Sprintf("init script '%s' has been removed", name), nil
		}
		return fmt.Sprintf("init script '%s' and %d more have been removed", name, len(removed)-1), nil

	default:
		// Divergence inside both lists: same file identity means its
		// content was edited in place; a different identity means the
		// script at this position was reordered or substituted.
		if current[k] == recorded[k].File {
			return fmt.Sprintf("init script '%s' has changed", host.DisplayName(current[k])), nil
		}
		return fmt.Sprintf("content of %s init script, '%s', has changed",
			ordinal(k+1), host.DisplayName(current[k])), nil
	}
}

// ordinal renders 1 as "1st", 2 as "2nd", and so on.
func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
