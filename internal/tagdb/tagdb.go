// Package tagdb maintains the tag → reference-count index. The index is a
// cache over the interval data: it is persisted as a small JSON sidecar and
// can always be rebuilt from the store's lines.
package tagdb

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hpungsan/tally/internal/errors"
)

// TagInfo is the per-tag payload stored in the sidecar. Unknown JSON members
// found next to "count" are preserved across a round-trip.
type TagInfo struct {
	Count  uint
	extras map[string]json.RawMessage
}

// TagDatabase maps tag names to their reference counts. Tags that drop to a
// zero count are retained; removal is explicit.
type TagDatabase struct {
	tags     map[string]*TagInfo
	modified bool
}

// New returns an empty tag database.
func New() *TagDatabase {
	return &TagDatabase{tags: make(map[string]*TagInfo)}
}

// Add installs or replaces a tag entry wholesale.
func (db *TagDatabase) Add(tag string, info TagInfo) {
	copied := info
	db.tags[tag] = &copied
	db.modified = true
}

// IncrementTag bumps the count for tag, creating the entry if needed.
// Returns the previous count, or -1 if the tag was previously absent.
func (db *TagDatabase) IncrementTag(tag string) int {
	db.modified = true

	if info, ok := db.tags[tag]; ok {
		previous := int(info.Count)
		info.Count++
		return previous
	}

	db.tags[tag] = &TagInfo{Count: 1}
	return -1
}

// DecrementTag lowers the count for tag, clamping at zero. Returns the new
// count, or -1 if the tag is unknown.
func (db *TagDatabase) DecrementTag(tag string) int {
	info, ok := db.tags[tag]
	if !ok {
		return -1
	}

	if info.Count > 0 {
		info.Count--
		db.modified = true
	}
	return int(info.Count)
}

// Count returns the current count for tag and whether the tag is known.
func (db *TagDatabase) Count(tag string) (uint, bool) {
	info, ok := db.tags[tag]
	if !ok {
		return 0, false
	}
	return info.Count, true
}

// Tags returns a sorted snapshot of all known tag names, including those
// with a zero count.
func (db *TagDatabase) Tags() []string {
	names := make([]string, 0, len(db.tags))
	for tag := range db.tags {
		names = append(names, tag)
	}
	sort.Strings(names)
	return names
}

// IsModified reports whether the in-memory index differs from the sidecar.
func (db *TagDatabase) IsModified() bool {
	return db.modified
}

// ClearModified marks the index as in sync with the sidecar.
func (db *TagDatabase) ClearModified() {
	db.modified = false
}

// ToJSON renders the sidecar document: a single JSON object keyed by tag,
// each value an object carrying "count" plus any preserved members.
func (db *TagDatabase) ToJSON() string {
	doc := make(map[string]map[string]json.RawMessage, len(db.tags))
	for tag, info := range db.tags {
		entry := make(map[string]json.RawMessage, len(info.extras)+1)
		for k, v := range info.extras {
			entry[k] = v
		}
		entry["count"] = json.RawMessage(fmt.Sprintf("%d", info.Count))
		doc[tag] = entry
	}

	out, _ := json.Marshal(doc)
	return string(out)
}

// Parse builds a TagDatabase from sidecar content. Each tag object must have
// a numeric "count" member; any other members are kept verbatim. The
// returned database is marked unmodified.
func Parse(data []byte) (*TagDatabase, error) {
	var doc map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewInvalidFile("tags.data", err.Error())
	}
	if doc == nil {
		return nil, errors.NewInvalidFile("tags.data", "contents invalid")
	}

	db := New()
	for tag, entry := range doc {
		raw, ok := entry["count"]
		if !ok {
			return nil, errors.NewInvalidFile("tags.data", fmt.Sprintf("tag %q has no count member", tag))
		}

		var count float64
		if err := json.Unmarshal(raw, &count); err != nil || count < 0 {
			return nil, errors.NewInvalidFile("tags.data", fmt.Sprintf("tag %q has an invalid count", tag))
		}

		info := &TagInfo{Count: uint(count)}
		for k, v := range entry {
			if k == "count" {
				continue
			}
			if info.extras == nil {
				info.extras = make(map[string]json.RawMessage)
			}
			info.extras[k] = v
		}
		db.tags[tag] = info
	}

	return db, nil
}
