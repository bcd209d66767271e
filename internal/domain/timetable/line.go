package timetable

import (
	"regexp"
	"strings"
	"unicode"
)

// LineKind is the shape of a single trimmed line of document text.
type LineKind int

const (
	// LineOther is layout residue: stray punctuation, partial tokens, numbers.
	LineOther LineKind = iota
	// LineDate is a whole-line DD.MM.YYYY date.
	LineDate
	// LineTimeStart is the first half of a time range split across two lines ("8:30-").
	LineTimeStart
	// LineTimeEnd is a bare clock time ("10:05").
	LineTimeEnd
	// LineSubject is any line with at least one Cyrillic letter.
	LineSubject
)

var (
	datePattern      = regexp.MustCompile(`^[0-9]{2}\.[0-9]{2}\.[0-9]{4}$`)
	timeStartPattern = regexp.MustCompile(`^[0-9]{1,2}:[0-9]{2}-$`)
	timeEndPattern   = regexp.MustCompile(`^[0-9]{1,2}:[0-9]{2}$`)
)

// String returns the kind name.
func (k LineKind) String() string {
	switch k {
	case LineDate:
		return "date"
	case LineTimeStart:
		return "time_start"
	case LineTimeEnd:
		return "time_end"
	case LineSubject:
		return "subject"
	default:
		return "other"
	}
}

// Classify returns the kind of line. Rules are checked in order and the first match wins.
func Classify(line string) LineKind {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return LineOther
	case datePattern.MatchString(line):
		return LineDate
	case timeStartPattern.MatchString(line):
		return LineTimeStart
	case timeEndPattern.MatchString(line):
		return LineTimeEnd
	case hasCyrillicLetter(line):
		return LineSubject
	default:
		return LineOther
	}
}

func hasCyrillicLetter(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// splitLines splits raw text into physical lines, accepting \n and \r\n endings.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// normalizeLines trims every line and drops the blank ones.
func normalizeLines(text string) []string {
	raw := splitLines(text)
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
