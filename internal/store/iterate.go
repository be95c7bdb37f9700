package store

// Iteration is a two-level walk: the outer cursor moves over Datafiles, the
// inner one over the lines of the current file. Empty files are skipped.
// The file list is snapshotted when the walk starts; mutating the store
// while a walk is in progress is a contract violation with undefined
// results, matching the single-threaded deployment.

// Walk visits every serialized interval line in reverse chronological order
// (most recent first), the dominant access pattern. The yield function
// returns false to stop early. The returned error is non-nil only when a
// Datafile failed to load.
func (d *Database) Walk(yield func(line string) bool) error {
	files := d.files
	for i := len(files) - 1; i >= 0; i-- {
		lines, err := files[i].AllLines()
		if err != nil {
			return err
		}
		for k := len(lines) - 1; k >= 0; k-- {
			if !yield(lines[k]) {
				return nil
			}
		}
	}
	return nil
}

// WalkAscending visits every line in chronological order.
func (d *Database) WalkAscending(yield func(line string) bool) error {
	files := d.files
	for _, df := range files {
		lines, err := df.AllLines()
		if err != nil {
			return err
		}
		for _, line := range lines {
			if !yield(line) {
				return nil
			}
		}
	}
	return nil
}

// AllLines collects every line, most recent first.
func (d *Database) AllLines() ([]string, error) {
	var out []string
	err := d.Walk(func(line string) bool {
		out = append(out, line)
		return true
	})
	return out, err
}

// AllLinesAscending collects every line in chronological order.
func (d *Database) AllLinesAscending() ([]string, error) {
	var out []string
	err := d.WalkAscending(func(line string) bool {
		out = append(out, line)
		return true
	})
	return out, err
}

// GetLatestEntry returns the most recent non-empty line, or "" when the
// store has none.
func (d *Database) GetLatestEntry() (string, error) {
	var latest string
	err := d.Walk(func(line string) bool {
		if line != "" {
			latest = line
			return false
		}
		return true
	})
	return latest, err
}

// Empty reports whether the store holds no interval lines at all.
func (d *Database) Empty() bool {
	empty := true
	d.Walk(func(string) bool {
		empty = false
		return false
	})
	return empty
}
