// Package store implements the segmented interval database: an ordered
// collection of month-sharded Datafiles presenting one logical timeline,
// together with the tag index and the undo journal.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/tally/internal/atomicfile"
	"github.com/hpungsan/tally/internal/datafile"
	"github.com/hpungsan/tally/internal/errors"
	"github.com/hpungsan/tally/internal/interval"
	"github.com/hpungsan/tally/internal/journal"
	"github.com/hpungsan/tally/internal/tagdb"
)

// Options configures Open.
type Options struct {
	// JournalSize bounds the undo journal's transaction count. Zero keeps
	// everything; a negative value disables journal persistence.
	JournalSize int

	// Stderr receives human diagnostics (tag index parse failures and the
	// rebuild notice). Defaults to os.Stderr.
	Stderr io.Writer
}

// Database is the persistent interval store rooted at one directory. It is
// single-threaded: all operations run on the caller's goroutine, and the
// store must not be mutated while a Walk is in progress.
type Database struct {
	location string
	files    []*datafile.Datafile
	tagDB    *tagdb.TagDatabase
	journal  *journal.Journal
	stderr   io.Writer

	// recording gates journal writes; cleared while undo replays inverses
	// so that undoing is not itself journaled.
	recording bool
}

// TagChange reports the effect of one mutation on one tag.
type TagChange struct {
	Tag    string
	WasNew bool
}

// AddResult is the structured outcome of AddInterval. Callers decide what,
// if anything, to print about new tags.
type AddResult struct {
	TagChanges []TagChange
}

// Open constructs a Database rooted at location, discovering existing data
// files, loading the undo journal, and initializing the tag index.
func Open(location string, opts Options) (*Database, error) {
	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, errors.NewIO(location, err)
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	d := &Database{
		location:  location,
		stderr:    stderr,
		recording: true,
	}

	var err error
	if d.journal, err = journal.Initialize(filepath.Join(location, "undo.data"), opts.JournalSize); err != nil {
		return nil, err
	}
	if err := d.initializeDatafiles(); err != nil {
		return nil, err
	}
	if err := d.initializeTagDatabase(); err != nil {
		return nil, err
	}
	return d, nil
}

// initializeDatafiles discovers YYYY-MM.data files under the location.
// Because the names embed the month, sorting by name sorts by range.
func (d *Database) initializeDatafiles() error {
	entries, err := os.ReadDir(d.location)
	if err != nil {
		return errors.NewIO(d.location, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && datafile.ValidName(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	d.files = make([]*datafile.Datafile, 0, len(names)+1)
	for _, name := range names {
		df, err := datafile.New(filepath.Join(d.location, name))
		if err != nil {
			return err
		}
		d.files = append(d.files, df)
	}
	return nil
}

// tagsPath returns the tag index sidecar location.
func (d *Database) tagsPath() string {
	return filepath.Join(d.location, "tags.data")
}

// initializeTagDatabase loads the sidecar, or rebuilds it from the interval
// data when it is missing or malformed. The interval data is ground truth;
// the sidecar is only a cache.
func (d *Database) initializeTagDatabase() error {
	exists := atomicfile.Exists(d.tagsPath())
	if exists {
		data, err := atomicfile.Read(d.tagsPath())
		if err != nil {
			return err
		}

		parsed, perr := tagdb.Parse(data)
		if perr == nil {
			d.tagDB = parsed
			return nil
		}
		fmt.Fprintf(d.stderr, "Error parsing tags database: %s\n", perr.Error())
	}

	d.tagDB = tagdb.New()

	if !d.Empty() {
		if !exists {
			fmt.Fprint(d.stderr, "Tags database does not exist. ")
		}
		fmt.Fprintln(d.stderr, "Recreating from interval data...")

		var parseErr error
		err := d.Walk(func(line string) bool {
			iv, perr := interval.FromSerialization(line)
			if perr != nil {
				parseErr = errors.NewInvalidFile(d.location, "unparseable interval line: "+line)
				return false
			}
			for _, tag := range iv.Tags {
				d.tagDB.IncrementTag(tag)
			}
			return true
		})
		if err == nil {
			err = parseErr
		}
		if err != nil {
			return err
		}
	}

	if err := atomicfile.WriteString(d.tagsPath(), d.tagDB.ToJSON()); err != nil {
		return err
	}
	d.tagDB.ClearModified()
	return nil
}

// Location returns the directory the store is rooted at.
func (d *Database) Location() string {
	return d.location
}

// Journal exposes the undo journal for transaction bracketing.
func (d *Database) Journal() *journal.Journal {
	return d.journal
}

// Files returns a snapshot of the current data file names, oldest first.
func (d *Database) Files() []string {
	names := make([]string, 0, len(d.files))
	for _, df := range d.files {
		names = append(names, df.Name())
	}
	return names
}

// Tags returns a sorted snapshot of all known tag names.
func (d *Database) Tags() []string {
	return d.tagDB.Tags()
}

// TagCount returns the reference count for a tag.
func (d *Database) TagCount(tag string) (uint, bool) {
	return d.tagDB.Count(tag)
}

// findDatafile locates the file whose range contains r's start, searching
// from the newest file backward because recent intervals dominate the
// workload. When no file matches it returns the index at which a new file
// covering r would be inserted.
func (d *Database) findDatafile(r interval.Range) (int, bool) {
	for i := len(d.files) - 1; i >= 0; i-- {
		span := d.files[i].Range()
		if r.StartsWithin(span) {
			return i, true
		}
		if !span.End.After(r.Start) {
			return i + 1, false
		}
	}
	return 0, false
}

// getDatafile returns the Datafile covering the interval's start, creating
// it lazily at the right position when no file covers that month.
func (d *Database) getDatafile(iv interval.Interval) (*datafile.Datafile, error) {
	idx, found := d.findDatafile(iv.Range())
	if found {
		return d.files[idx], nil
	}

	df, err := datafile.New(filepath.Join(d.location, datafile.NameFor(iv.Start)))
	if err != nil {
		return nil, err
	}

	d.files = append(d.files, nil)
	copy(d.files[idx+1:], d.files[idx:])
	d.files[idx] = df
	return df, nil
}

// AddInterval routes the interval to its month's Datafile, updates tag
// counts, and journals the addition. The returned AddResult reports which
// tags were new; the store itself never prints.
func (d *Database) AddInterval(iv interval.Interval) (AddResult, error) {
	if err := iv.Validate(); err != nil {
		return AddResult{}, err
	}

	var result AddResult
	for _, tag := range iv.Tags {
		previous := d.tagDB.IncrementTag(tag)
		result.TagChanges = append(result.TagChanges, TagChange{Tag: tag, WasNew: previous == -1})
	}

	df, err := d.getDatafile(iv)
	if err != nil {
		return AddResult{}, err
	}

	changed, err := df.AddInterval(iv)
	if err != nil {
		return AddResult{}, err
	}
	if changed && d.recording {
		if err := d.journal.RecordIntervalAction("", iv.ToJSON()); err != nil {
			return AddResult{}, err
		}
	}
	return result, nil
}

// DeleteInterval removes the interval from its month's Datafile and updates
// tag counts. The covering Datafile is validated before any tag count is
// touched, so a NotFound failure leaves the index unchanged.
func (d *Database) DeleteInterval(iv interval.Interval) error {
	idx, found := d.findDatafile(iv.Range())
	if !found {
		return errors.NewNotFound(iv.Serialize())
	}

	for _, tag := range iv.Tags {
		d.tagDB.DecrementTag(tag)
	}

	if _, err := d.files[idx].DeleteInterval(iv); err != nil {
		return err
	}

	if d.recording {
		return d.journal.RecordIntervalAction(iv.ToJSON(), "")
	}
	return nil
}

// ModifyInterval removes from and adds to. Moving an interval across a
// month boundary lands it in a different Datafile, which is why the delete
// and the add are separate routings. An empty from is a pure add; an empty
// to is a pure delete. Callers wanting the pair undone as one unit bracket
// the call in a journal transaction.
func (d *Database) ModifyInterval(from, to interval.Interval) (AddResult, error) {
	if !from.Empty() {
		if err := d.DeleteInterval(from); err != nil {
			return AddResult{}, err
		}
	}

	if !to.Empty() {
		return d.AddInterval(to)
	}
	return AddResult{}, nil
}

// Commit flushes every dirty Datafile, then the tag index sidecar if it has
// changed. The journal needs no flushing here: it is persisted synchronously
// on every mutation.
func (d *Database) Commit() error {
	for _, df := range d.files {
		if err := df.Commit(); err != nil {
			return err
		}
	}

	if d.tagDB.IsModified() {
		if err := atomicfile.WriteString(d.tagsPath(), d.tagDB.ToJSON()); err != nil {
			return err
		}
		d.tagDB.ClearModified()
	}
	return nil
}

// Dump returns a diagnostic rendering of every Datafile.
func (d *Database) Dump() string {
	var b strings.Builder
	b.WriteString("Database\n")
	for _, df := range d.files {
		b.WriteString(df.Dump())
	}
	return b.String()
}

// SegmentRange splits an arbitrary range into one range per calendar month
// it touches, clamped to month boundaries. An open end is materialized as
// the present instant.
func (d *Database) SegmentRange(r interval.Range) []interval.Range {
	end := r.End
	if end.IsZero() {
		end = time.Now().UTC()
	}

	var segments []interval.Range
	clamped := interval.Range{Start: r.Start, End: end}

	year, month := r.Start.UTC().Year(), r.Start.UTC().Month()
	endYear, endMonth := end.UTC().Year(), end.UTC().Month()

	for year < endYear || (year == endYear && month <= endMonth) {
		segment := interval.MonthRange(year, month)
		if clamped.Intersects(segment) {
			segments = append(segments, segment)
		}

		month++
		if month > time.December {
			year++
			month = time.January
		}
	}
	return segments
}
