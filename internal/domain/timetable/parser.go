package timetable

import "strings"

// Slot is one recognized line item of a day: a time range, a subject, or both.
// Either field may be empty; a Slot is never entirely empty.
type Slot struct {
	TimeRange string `json:"time_range,omitempty" yaml:"time_range,omitempty"`
	Subject   string `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// HasTime reports whether the slot carries a reconstructed time range.
func (s Slot) HasTime() bool {
	return s.TimeRange != ""
}

// Day groups the slots filed under one date. An empty Date is the bucket for content
// seen before the first date line. Slots may be empty when a date line had no content.
type Day struct {
	Date  string `json:"date" yaml:"date"`
	Slots []Slot `json:"slots" yaml:"slots"`
}

// Entry is a flattened (date, time range, subject) triple.
type Entry struct {
	Date      string `json:"date" yaml:"date"`
	TimeRange string `json:"time_range,omitempty" yaml:"time_range,omitempty"`
	Subject   string `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// Timetable is the parsed schedule of one block. Days keep the order in which their
// dates first appeared; slots keep document order.
type Timetable struct {
	Days []Day `json:"days" yaml:"days"`
}

// IsEmpty reports whether no date and no slot was recognized.
func (t Timetable) IsEmpty() bool {
	return len(t.Days) == 0
}

// Entries flattens the timetable in display order.
func (t Timetable) Entries() []Entry {
	var out []Entry
	for _, d := range t.Days {
		for _, s := range d.Slots {
			out = append(out, Entry{Date: d.Date, TimeRange: s.TimeRange, Subject: s.Subject})
		}
	}
	return out
}

// Parse reconstructs (date, time, subject) triples from a block in one linear pass.
//
// A date line moves the current-date cursor. A split time start followed by a bare
// clock time forms one range; a subject line right after the pair is attached to it.
// Any other subject line completes the current day's trailing time range if that range
// has no subject yet, and otherwise becomes a subject-only slot. Lines of any other
// shape are skipped.
func Parse(block ScheduleBlock) Timetable {
	b := newDayBuilder()
	n := len(block)

	for i := 0; i < n; i++ {
		line := strings.TrimSpace(block[i])

		switch Classify(line) {
		case LineDate:
			b.setDate(line)

		case LineTimeStart:
			if i+1 >= n || Classify(block[i+1]) != LineTimeEnd {
				// Half a range with nothing to pair with.
				continue
			}
			slot := Slot{TimeRange: line + strings.TrimSpace(block[i+1])}
			i++
			if i+1 < n && Classify(block[i+1]) == LineSubject {
				slot.Subject = strings.TrimSpace(block[i+1])
				i++
			}
			b.add(slot)

		case LineSubject:
			b.addSubject(line)
		}
	}

	return b.build()
}

// dayBuilder accumulates slots per date while preserving first-seen date order.
type dayBuilder struct {
	days    []Day
	byDate  map[string]int
	current string
}

func newDayBuilder() *dayBuilder {
	return &dayBuilder{byDate: make(map[string]int)}
}

// setDate moves the cursor and fixes the date's position at its first appearance.
func (b *dayBuilder) setDate(date string) {
	b.current = date
	b.day()
}

func (b *dayBuilder) day() *Day {
	i, ok := b.byDate[b.current]
	if !ok {
		i = len(b.days)
		b.days = append(b.days, Day{Date: b.current})
		b.byDate[b.current] = i
	}
	return &b.days[i]
}

func (b *dayBuilder) add(s Slot) {
	d := b.day()
	d.Slots = append(d.Slots, s)
}

func (b *dayBuilder) addSubject(subject string) {
	d := b.day()
	if last := len(d.Slots) - 1; last >= 0 && d.Slots[last].HasTime() && d.Slots[last].Subject == "" {
		d.Slots[last].Subject = subject
		return
	}
	d.Slots = append(d.Slots, Slot{Subject: subject})
}

// build keeps every recorded date, including dates that never received a slot.
func (b *dayBuilder) build() Timetable {
	return Timetable{Days: b.days}
}
