// Package status implements the Status Writer (spec.md section 4.6): an
// atomic write-temp-then-rename helper so any reader of the status file
// observes exactly one of STARTING, RUNNING, EXITED at all times, never a
// half-written value. Grounded on original_source/src/main.rs's
// write_status_file, which writes to a sibling temp path and renames it
// over the real status file for the same reason.
package status

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Phase is one of the three strings spec.md section 4.6 defines.
type Phase string

const (
	Starting Phase = "STARTING"
	Running  Phase = "RUNNING"
	Exited   Phase = "EXITED"
)

// Write atomically sets path's contents to phase. A no-op when path is
// empty, matching spec.md's "absent path: no-op".
func Write(path string, phase Phase) error {
	if path == "" {
		return nil
	}
	return writeAtomic(path, []byte(phase))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir status dir")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp status file")
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath) // no-op once the rename below succeeds
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp status file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp status file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "rename status file")
	}
	return nil
}

// Read returns the current phase at path, tolerating a trailing newline
// some callers may have appended.
func Read(path string) (Phase, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "read status file")
	}
	s := string(b)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return Phase(s), nil
}
