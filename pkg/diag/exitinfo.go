// Package diag holds the diagnostics supplement (SPEC_FULL.md section 5):
// richer post-mortem information than the bare exit code spec.md's Status
// Writer records, plus the /proc sampling `orderly status` uses to show
// live resource usage. Grounded on the teacher's pkg/state (exit info,
// liveness, log tailing) and pkg/proc (CPU/RSS sampling).
package diag

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// ExitInfoPath and LogPath return where the engine's logFileSet and
// writeExitInfo put a service's artifacts under the cohort's -log-dir, so
// `orderly status` can find the same files without duplicating the
// naming convention.
func ExitInfoPath(logDir, service string) string {
	return filepath.Join(logDir, service+".exit.json")
}

func LogPath(logDir, service string) string {
	return filepath.Join(logDir, service+".log")
}

// ExitInfo captures why a service's RUN child went away: written by the
// Supervision Engine the moment it reaps a child, read back by `orderly
// status` for services that are no longer running.
type ExitInfo struct {
	Service   string    `json:"service"`
	PID       int       `json:"pid"`
	Action    string    `json:"action"` // outstanding ORDERLY_ACTION; pkg/engine.writeExitInfo leaves it empty
	StartedAt time.Time `json:"started_at"`
	ExitedAt  time.Time `json:"exited_at"`

	ExitCode *int   `json:"exit_code,omitempty"`
	Signal   string `json:"signal,omitempty"`
	Error    string `json:"error,omitempty"`

	// LogTail is the last few lines of the service's combined stdout+stderr
	// log (pkg/engine's logFileSet writes one file per service, not
	// separate streams, so there is only one tail to capture).
	LogTail []string `json:"log_tail,omitempty"`
}

// WriteExitInfo persists info as indented JSON at path, creating parent
// directories as needed.
func WriteExitInfo(path string, info ExitInfo) error {
	if path == "" {
		return errors.New("missing path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir exit info dir")
	}
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal exit info")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrap(err, "write exit info")
	}
	return nil
}

// ReadExitInfo reads back what WriteExitInfo wrote.
func ReadExitInfo(path string) (*ExitInfo, error) {
	if path == "" {
		return nil, errors.New("missing path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read exit info")
	}
	var info ExitInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, errors.Wrap(err, "unmarshal exit info")
	}
	return &info, nil
}
