package timetable

import "sort"

// InstituteIndex maps a unit prefix to the sorted, duplicate-free list of group codes
// belonging to that unit.
type InstituteIndex map[string][]GroupCode

// BuildIndex scans the whole text for group codes and buckets the unique ones by unit
// prefix. Text without any group code yields an empty, non-nil index.
func BuildIndex(text string) InstituteIndex {
	seen := make(map[GroupCode]struct{})
	for _, code := range FindGroupCodes(text) {
		seen[code] = struct{}{}
	}

	index := make(InstituteIndex)
	for code := range seen {
		unit := code.UnitPrefix()
		index[unit] = append(index[unit], code)
	}
	for unit := range index {
		codes := index[unit]
		sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	}
	return index
}

// Len returns the number of units.
func (idx InstituteIndex) Len() int {
	return len(idx)
}

// IsEmpty reports whether no group code was found.
func (idx InstituteIndex) IsEmpty() bool {
	return len(idx) == 0
}

// Units returns the unit prefixes in ascending order.
func (idx InstituteIndex) Units() []string {
	units := make([]string, 0, len(idx))
	for unit := range idx {
		units = append(units, unit)
	}
	sort.Strings(units)
	return units
}

// Groups returns the groups of one unit. The returned slice must not be modified.
func (idx InstituteIndex) Groups(unit string) []GroupCode {
	return idx[unit]
}

// Contains reports whether code was seen in the document.
func (idx InstituteIndex) Contains(code GroupCode) bool {
	groups := idx[code.UnitPrefix()]
	i := sort.Search(len(groups), func(i int) bool { return groups[i] >= code })
	return i < len(groups) && groups[i] == code
}

// GroupCount returns the total number of groups across all units.
func (idx InstituteIndex) GroupCount() int {
	n := 0
	for _, groups := range idx {
		n += len(groups)
	}
	return n
}
