// Package atomicfile provides the write-temp-then-rename primitive shared by
// every persistent write in the store. A failure before the rename leaves the
// target untouched and removes the temporary.
package atomicfile

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/tally/internal/errors"
)

// tempName returns a sibling temp path for target. The ULID suffix keeps
// concurrent writers from ever colliding on the same temp file.
func tempName(target string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	return target + "." + id.String() + ".tmp"
}

// Write atomically replaces the file at path with content. The content is
// written to a sibling temporary file, synced, and renamed into place.
func Write(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIO(dir, err)
	}

	tmp := tempName(path)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.NewIO(tmp, err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.NewIO(tmp, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.NewIO(tmp, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.NewIO(tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.NewIO(path, err)
	}

	return nil
}

// WriteString is Write for string content.
func WriteString(path, content string) error {
	return Write(path, []byte(content))
}

// Read returns the full contents of the file at path.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO(path, err)
	}
	return data, nil
}

// Exists reports whether a file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
