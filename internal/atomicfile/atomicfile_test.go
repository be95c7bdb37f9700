package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tally/internal/errors"
)

func TestWrite_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.data")

	require.NoError(t, WriteString(path, "{}"))

	data, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestWrite_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2016-06.data")

	require.NoError(t, WriteString(path, "old"))
	require.NoError(t, WriteString(path, "new"))

	data, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWrite_CreatesMissingDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "2016-06.data")

	require.NoError(t, WriteString(path, "x"))
	assert.True(t, Exists(path))
}

func TestWrite_LeavesNoTemporaries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "undo.data")

	require.NoError(t, WriteString(path, "content"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "undo.data", entries[0].Name())
}

func TestWrite_FailureLeavesTargetUntouched(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "tags.data")
	require.NoError(t, WriteString(path, "original"))

	// Make the directory read-only so the temp file cannot be created.
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	err := WriteString(path, "replacement")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))

	require.NoError(t, os.Chmod(dir, 0o755))
	data, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.data"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
	assert.True(t, errors.Is(err, errors.ErrIO) && os.IsNotExist(asOSErr(err)))
}

// asOSErr digs the wrapped OS error back out of a TallyError.
func asOSErr(err error) error {
	tErr, ok := err.(*errors.TallyError)
	if !ok {
		return err
	}
	return tErr.Wrapped
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present.data")

	assert.False(t, Exists(path))
	require.NoError(t, WriteString(path, ""))
	assert.True(t, Exists(path))
}
