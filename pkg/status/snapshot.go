package status

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

// ServiceSnapshot is one service's line in the snapshot file
// (SPEC_FULL.md section 9's `orderly status` supplement). CPUPercent and
// MemoryMB are a best-effort pkg/diag sample of the RUN pid taken at
// snapshot time; both are zero when the pid is gone or /proc couldn't be
// read.
type ServiceSnapshot struct {
	Name       string  `json:"name"`
	Lifecycle  string  `json:"lifecycle"`
	PID        int     `json:"pid"`
	Restarts   int     `json:"restarts"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
	MemoryMB   int64   `json:"memory_mb,omitempty"`
}

// Snapshot is the full cohort view written alongside the status file.
// Purely a read convenience for `orderly status`; it carries no
// authority spec.md's status file doesn't already have — deleting it
// only degrades status's detail, never the engine's own behavior.
//
// Phase here is the engine's four-valued CohortState.phase (StartingUp,
// Running, ShuttingDown, Exited), a finer-grained vocabulary than the
// three-valued Phase type the status file itself carries, so it is kept
// as a plain string rather than reusing that type.
type Snapshot struct {
	Phase        string            `json:"phase"`
	UpdatedAt    time.Time         `json:"updated_at"`
	RestartToken float64           `json:"restart_tokens"`
	Services     []ServiceSnapshot `json:"services"`
}

// SnapshotPath derives the snapshot side-channel path from the status
// file path (SPEC_FULL.md section 9: "<status-file>.snapshot.json").
func SnapshotPath(statusFilePath string) string {
	if statusFilePath == "" {
		return ""
	}
	return statusFilePath + ".snapshot.json"
}

// WriteSnapshot atomically writes snap to path. No-op when path is empty.
func WriteSnapshot(path string, snap Snapshot) error {
	if path == "" {
		return nil
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, b)
}

// ReadSnapshot reads back what WriteSnapshot wrote.
func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	b, err := os.ReadFile(path)
	if err != nil {
		return snap, errors.Wrap(err, "read snapshot file")
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, errors.Wrap(err, "unmarshal snapshot file")
	}
	return snap, nil
}
