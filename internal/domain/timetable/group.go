// Package timetable turns the flattened text of a published timetable document into
// a catalog of group codes and a per-group, per-date list of lessons.
//
// The package is pure: every function takes an immutable text snapshot and returns a
// freshly built value. Nothing is cached between calls, so any number of goroutines
// may work against the same snapshot without synchronization.
package timetable

import (
	"regexp"
	"strings"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
)

// groupCodePattern matches a group code: one to four letters from the Cyrillic block
// (U+0400..U+04FF), a dash, two to four ASCII digits.
var groupCodePattern = regexp.MustCompile(`[\x{0400}-\x{04FF}]{1,4}-[0-9]{2,4}`)

// exactGroupCodePattern matches a string that is nothing but a group code.
var exactGroupCodePattern = regexp.MustCompile(`^[\x{0400}-\x{04FF}]{1,4}-[0-9]{2,4}$`)

// GroupCode identifies a student cohort, e.g. "ИС-951".
// Codes compare by exact string equality; no case folding is applied.
type GroupCode string

// ParseGroupCode validates that s is exactly one group code.
func ParseGroupCode(s string) (GroupCode, error) {
	if !exactGroupCodePattern.MatchString(s) {
		return "", shared.WrapError("timetable", "ParseGroupCode", shared.ErrInvalidFormat,
			"invalid group code", shared.ErrInvalidGroupCode)
	}
	return GroupCode(s), nil
}

// String returns the code as written in the document.
func (g GroupCode) String() string {
	return string(g)
}

// UnitPrefix returns the organizational unit part of the code (before the first dash).
func (g GroupCode) UnitPrefix() string {
	prefix, _, _ := strings.Cut(string(g), "-")
	return prefix
}

// FindGroupCodes returns every group code in s, leftmost-first and non-overlapping.
func FindGroupCodes(s string) []GroupCode {
	matches := groupCodePattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return nil
	}
	codes := make([]GroupCode, len(matches))
	for i, m := range matches {
		codes[i] = GroupCode(m)
	}
	return codes
}

// ContainsGroupCode reports whether any group code occurs in s.
func ContainsGroupCode(s string) bool {
	return groupCodePattern.MatchString(s)
}
