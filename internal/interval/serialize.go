package interval

import (
	"strings"
	"time"

	"github.com/hpungsan/tally/internal/errors"
)

// Serialize renders the interval as its canonical single-line text form:
//
//	inc 20160603T010000Z - 20160603T020000Z # tag "tag two" # "annotation"
//
// An open interval omits the "- END" part. The annotation, when present,
// follows a second '#'.
func (i Interval) Serialize() string {
	var b strings.Builder
	b.WriteString("inc")

	if !i.Start.IsZero() {
		b.WriteByte(' ')
		b.WriteString(i.Start.UTC().Format(TimeLayout))

		if !i.End.IsZero() {
			b.WriteString(" - ")
			b.WriteString(i.End.UTC().Format(TimeLayout))
		}
	}

	if len(i.Tags) > 0 || i.Annotation != "" {
		b.WriteString(" #")
		for _, tag := range i.Tags {
			b.WriteByte(' ')
			b.WriteString(QuoteIfNeeded(tag))
		}
	}

	if i.Annotation != "" {
		b.WriteString(" # ")
		b.WriteString(QuoteIfNeeded(i.Annotation))
	}

	return b.String()
}

// QuoteIfNeeded wraps a word in double quotes when it contains characters
// that would confuse the line tokenizer, escaping embedded quotes and
// backslashes.
func QuoteIfNeeded(word string) string {
	if word != "" && !strings.ContainsAny(word, " \t\"\\#") {
		return word
	}

	var b strings.Builder
	b.WriteByte('"')
	for _, r := range word {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// FromSerialization parses the canonical text form back into an Interval.
func FromSerialization(line string) (Interval, error) {
	words, err := tokenize(line)
	if err != nil {
		return Interval{}, err
	}
	if len(words) == 0 || words[0].text != "inc" || words[0].quoted {
		return Interval{}, errors.NewInvalidRequest("interval line must begin with 'inc': " + line)
	}

	var i Interval
	pos := 1

	if pos < len(words) && !words[pos].quoted && isDatetime(words[pos].text) {
		t, err := time.Parse(TimeLayout, words[pos].text)
		if err != nil {
			return Interval{}, errors.NewInvalidRequest("invalid datetime in interval line: " + words[pos].text)
		}
		i.Start = t
		pos++

		if pos+1 < len(words) && !words[pos].quoted && words[pos].text == "-" {
			t, err := time.Parse(TimeLayout, words[pos+1].text)
			if err != nil {
				return Interval{}, errors.NewInvalidRequest("invalid datetime in interval line: " + words[pos+1].text)
			}
			i.End = t
			pos += 2
		}
	}

	// First '#' introduces tags, second introduces the annotation.
	if pos < len(words) {
		if words[pos].quoted || words[pos].text != "#" {
			return Interval{}, errors.NewInvalidRequest("unexpected token in interval line: " + words[pos].text)
		}
		pos++
		for pos < len(words) && (words[pos].quoted || words[pos].text != "#") {
			i.Tags = append(i.Tags, words[pos].text)
			pos++
		}
	}

	if pos < len(words) {
		// words[pos] is the second unquoted '#'; the remainder is annotation.
		pos++
		var parts []string
		for ; pos < len(words); pos++ {
			parts = append(parts, words[pos].text)
		}
		i.Annotation = strings.Join(parts, " ")
	}

	return i, nil
}

// word is one tokenized element of a serialized line.
type word struct {
	text   string
	quoted bool
}

// tokenize splits a line on whitespace, honoring double-quoted words with
// backslash escapes.
func tokenize(line string) ([]word, error) {
	var words []word
	runes := []rune(line)
	n := len(runes)

	for pos := 0; pos < n; {
		for pos < n && (runes[pos] == ' ' || runes[pos] == '\t') {
			pos++
		}
		if pos >= n {
			break
		}

		if runes[pos] == '"' {
			pos++
			var b strings.Builder
			closed := false
			for pos < n {
				r := runes[pos]
				if r == '\\' && pos+1 < n {
					b.WriteRune(runes[pos+1])
					pos += 2
					continue
				}
				if r == '"' {
					pos++
					closed = true
					break
				}
				b.WriteRune(r)
				pos++
			}
			if !closed {
				return nil, errors.NewInvalidRequest("unterminated quote in interval line: " + line)
			}
			words = append(words, word{text: b.String(), quoted: true})
			continue
		}

		start := pos
		for pos < n && runes[pos] != ' ' && runes[pos] != '\t' {
			pos++
		}
		words = append(words, word{text: string(runes[start:pos])})
	}

	return words, nil
}

// isDatetime reports whether a token looks like the compact datetime layout.
func isDatetime(s string) bool {
	if len(s) != len(TimeLayout) || s[8] != 'T' || s[len(s)-1] != 'Z' {
		return false
	}
	for i, r := range s {
		if i == 8 || i == len(s)-1 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CompareLines orders two serialized interval lines by parsed start instant,
// breaking ties by end instant (an open end sorts after any closed end with
// the same start) and finally by the raw bytes. Lines that fail to parse
// compare by raw bytes only, keeping the order total.
func CompareLines(a, b string) int {
	ia, errA := FromSerialization(a)
	ib, errB := FromSerialization(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}

	if c := ia.Start.Compare(ib.Start); c != 0 {
		return c
	}

	switch {
	case ia.IsOpen() && !ib.IsOpen():
		return 1
	case !ia.IsOpen() && ib.IsOpen():
		return -1
	case !ia.IsOpen() && !ib.IsOpen():
		if c := ia.End.Compare(ib.End); c != 0 {
			return c
		}
	}

	return strings.Compare(a, b)
}
