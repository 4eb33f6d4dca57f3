package status

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status")

	require.NoError(t, Write(path, Starting))
	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, Starting, got)

	require.NoError(t, Write(path, Running))
	got, err = Read(path)
	require.NoError(t, err)
	assert.Equal(t, Running, got)
}

func TestWriteEmptyPathIsNoop(t *testing.T) {
	require.NoError(t, Write("", Running))
}

func TestWriteLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status")
	require.NoError(t, Write(path, Exited))

	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{path}, entries)
}

func TestSnapshotRoundtrip(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "status")
	snapPath := SnapshotPath(statusPath)
	assert.Equal(t, statusPath+".snapshot.json", snapPath)

	snap := Snapshot{
		Phase: "Running",
		Services: []ServiceSnapshot{
			{Name: "web", Lifecycle: "Running", PID: 1234, Restarts: 1},
		},
	}
	require.NoError(t, WriteSnapshot(snapPath, snap))

	got, err := ReadSnapshot(snapPath)
	require.NoError(t, err)
	assert.Equal(t, snap.Phase, got.Phase)
	assert.Equal(t, snap.Services, got.Services)
}
