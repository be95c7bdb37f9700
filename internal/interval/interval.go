// Package interval defines the tagged half-open time range that every other
// component stores, routes, and journals. The single-line text form produced
// by Serialize is the canonical persistent unit; the JSON form is used for
// undo-journal payloads.
package interval

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/hpungsan/tally/internal/errors"
)

// TimeLayout is the compact UTC layout used in both the text and JSON forms.
const TimeLayout = "20060102T150405Z"

// Interval is a half-open time range [Start, End) with tags and an optional
// annotation. A zero End means the interval is open (still running).
type Interval struct {
	Start      time.Time
	End        time.Time
	Tags       []string
	Annotation string
}

// New returns a closed interval over [start, end).
func New(start, end time.Time) Interval {
	return Interval{Start: start.UTC(), End: end.UTC()}
}

// NewOpen returns an open interval starting at start.
func NewOpen(start time.Time) Interval {
	return Interval{Start: start.UTC()}
}

// IsOpen reports whether the interval has no end yet.
func (i Interval) IsOpen() bool {
	return i.End.IsZero()
}

// Empty reports whether the interval carries no information at all. Empty
// intervals act as "no-op" arguments to modify.
func (i Interval) Empty() bool {
	return i.Start.IsZero() && i.End.IsZero() && len(i.Tags) == 0 && i.Annotation == ""
}

// Range returns the interval's own time range.
func (i Interval) Range() Range {
	return Range{Start: i.Start, End: i.End}
}

// HasTag reports whether the interval carries the given tag. Tag equality is
// byte-exact and case-sensitive.
func (i Interval) HasTag(tag string) bool {
	return slices.Contains(i.Tags, tag)
}

// Tag adds a tag unless it is already present.
func (i *Interval) Tag(tag string) {
	if !i.HasTag(tag) {
		i.Tags = append(i.Tags, tag)
	}
}

// Untag removes a tag if present.
func (i *Interval) Untag(tag string) {
	i.Tags = slices.DeleteFunc(i.Tags, func(t string) bool { return t == tag })
}

// Validate checks the start/end invariant: a closed interval must not end
// before it starts.
func (i Interval) Validate() error {
	if !i.End.IsZero() && i.End.Before(i.Start) {
		return errors.NewInvariant("interval ends before it starts: " + i.Serialize())
	}
	return nil
}

// intervalJSON is the wire shape of the JSON form. Zero fields are omitted;
// an open interval has no "end" member.
type intervalJSON struct {
	Start      string   `json:"start,omitempty"`
	End        string   `json:"end,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Annotation string   `json:"annotation,omitempty"`
}

// ToJSON renders the interval as a single-line JSON document.
func (i Interval) ToJSON() string {
	w := intervalJSON{
		Tags:       i.Tags,
		Annotation: i.Annotation,
	}
	if !i.Start.IsZero() {
		w.Start = i.Start.UTC().Format(TimeLayout)
	}
	if !i.End.IsZero() {
		w.End = i.End.UTC().Format(TimeLayout)
	}
	out, _ := json.Marshal(w)
	return string(out)
}

// FromJSON parses the JSON form produced by ToJSON.
func FromJSON(doc string) (Interval, error) {
	var w intervalJSON
	if err := json.Unmarshal([]byte(doc), &w); err != nil {
		return Interval{}, errors.NewInvalidRequest("invalid interval JSON: " + err.Error())
	}

	var i Interval
	if w.Start != "" {
		t, err := time.Parse(TimeLayout, w.Start)
		if err != nil {
			return Interval{}, errors.NewInvalidRequest("invalid interval start: " + w.Start)
		}
		i.Start = t
	}
	if w.End != "" {
		t, err := time.Parse(TimeLayout, w.End)
		if err != nil {
			return Interval{}, errors.NewInvalidRequest("invalid interval end: " + w.End)
		}
		i.End = t
	}
	i.Tags = w.Tags
	i.Annotation = w.Annotation
	return i, nil
}
