package store

import (
	"github.com/hpungsan/tally/internal/interval"
	"github.com/hpungsan/tally/internal/journal"
)

// Undo pops the newest journal transaction and applies the inverse of each
// of its records through the normal mutation paths, with journal recording
// suspended so that undoing is not itself journaled. Returns false when the
// journal had nothing to undo.
func (d *Database) Undo() (bool, error) {
	records, err := d.journal.Undo()
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}

	d.recording = false
	defer func() { d.recording = true }()

	// Records arrive newest-first; applying each inverse in that order
	// rewinds the transaction as one unit.
	for _, rec := range records {
		if rec.Type != journal.RecordInterval {
			// Config records are reserved; nothing to reapply yet.
			continue
		}

		if rec.After != "" {
			iv, err := interval.FromJSON(rec.After)
			if err != nil {
				return false, err
			}
			if err := d.DeleteInterval(iv); err != nil {
				return false, err
			}
		}

		if rec.Before != "" {
			iv, err := interval.FromJSON(rec.Before)
			if err != nil {
				return false, err
			}
			if _, err := d.AddInterval(iv); err != nil {
				return false, err
			}
		}
	}

	return true, nil
}
