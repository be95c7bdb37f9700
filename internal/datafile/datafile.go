// Package datafile mirrors one calendar month's serialized interval lines.
// A Datafile is loaded from disk at most once, on first access, and kept in
// memory thereafter; a dirty flag tracks whether it needs flushing.
package datafile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/tally/internal/atomicfile"
	"github.com/hpungsan/tally/internal/errors"
	"github.com/hpungsan/tally/internal/interval"
)

// namePattern matches the only filename shape a Datafile may have.
var namePattern = regexp.MustCompile(`^(\d{4})-(\d{2})\.data$`)

// Datafile owns the on-disk file for one month and its in-memory line list.
type Datafile struct {
	path  string
	span  interval.Range
	lines []string

	loaded bool
	dirty  bool
}

// New creates a Datafile for the given path. The base name must be of the
// form YYYY-MM.data; the file itself need not exist yet.
func New(path string) (*Datafile, error) {
	m := namePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return nil, errors.NewInvalidFile(path, "file name must match YYYY-MM.data")
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return nil, errors.NewInvalidFile(path, "month out of range")
	}

	return &Datafile{
		path: path,
		span: interval.MonthRange(year, time.Month(month)),
	}, nil
}

// ValidName reports whether name could belong to a Datafile.
func ValidName(name string) bool {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return false
	}
	month, _ := strconv.Atoi(m[2])
	return month >= 1 && month <= 12
}

// NameFor returns the Datafile base name covering the given instant.
func NameFor(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d-%02d.data", t.Year(), int(t.Month()))
}

// Name returns the base filename, e.g. "2016-06.data".
func (d *Datafile) Name() string {
	return filepath.Base(d.path)
}

// Range returns the month range [first of month, first of next month)
// derived from the file name.
func (d *Datafile) Range() interval.Range {
	return d.span
}

// IsDirty reports whether the in-memory lines differ from disk.
func (d *Datafile) IsDirty() bool {
	return d.dirty
}

// AllLines returns the ordered serialized interval lines, reading the file
// from disk on the first call.
func (d *Datafile) AllLines() ([]string, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	return d.lines, nil
}

func (d *Datafile) load() error {
	if d.loaded {
		return nil
	}

	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			// A Datafile is created lazily; absence just means no lines yet.
			d.loaded = true
			return nil
		}
		return errors.NewInvalidFile(d.path, err.Error())
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			d.lines = append(d.lines, line)
		}
	}
	d.loaded = true
	return nil
}

// AddInterval inserts the interval's serialized line at its sorted position.
// The caller has already resolved that the interval starts within Range().
// Returns true iff the file changed; an exact duplicate line is a no-op.
func (d *Datafile) AddInterval(iv interval.Interval) (bool, error) {
	if err := d.load(); err != nil {
		return false, err
	}

	line := iv.Serialize()
	pos := sort.Search(len(d.lines), func(i int) bool {
		return interval.CompareLines(d.lines[i], line) >= 0
	})
	if pos < len(d.lines) && d.lines[pos] == line {
		return false, nil
	}

	d.lines = append(d.lines, "")
	copy(d.lines[pos+1:], d.lines[pos:])
	d.lines[pos] = line
	d.dirty = true
	return true, nil
}

// DeleteInterval removes the line matching the interval's serialization.
// Absence is tolerated and reported as false.
func (d *Datafile) DeleteInterval(iv interval.Interval) (bool, error) {
	if err := d.load(); err != nil {
		return false, err
	}

	line := iv.Serialize()
	for i, l := range d.lines {
		if l == line {
			d.lines = append(d.lines[:i], d.lines[i+1:]...)
			d.dirty = true
			return true, nil
		}
	}
	return false, nil
}

// Commit flushes the full line list atomically if the file is dirty.
func (d *Datafile) Commit() error {
	if !d.dirty {
		return nil
	}

	var b strings.Builder
	for _, line := range d.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if err := atomicfile.WriteString(d.path, b.String()); err != nil {
		return err
	}
	d.dirty = false
	return nil
}

// Dump returns a diagnostic rendering of the file's state.
func (d *Datafile) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Datafile %s loaded=%t dirty=%t\n", d.Name(), d.loaded, d.dirty)
	for _, line := range d.lines {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	return b.String()
}
