package timetable

import "strings"

// slotSeparator sits between a time range and its subject.
const slotSeparator = "  —  "

// slotIndent prefixes every slot line.
const slotIndent = "  "

// Labels holds the fixed texts used when rendering.
type Labels struct {
	// NoSubject replaces a missing subject after a time range.
	NoSubject string
	// EmptyFragment is rendered when a block recorded neither a date nor a slot.
	EmptyFragment string
	// NotFound is rendered when the group does not occur in the document.
	NotFound string
	// UndatedDay heads slots seen before any date line.
	UndatedDay string
}

// DefaultLabels returns the English display texts.
func DefaultLabels() Labels {
	return Labels{
		NoSubject:     "(subject not specified)",
		EmptyFragment: "Empty schedule fragment.",
		NotFound:      "Schedule for this group was not found in the current document.",
		UndatedDay:    "Date not specified",
	}
}

// RussianLabels returns the texts shown to students by the bot.
func RussianLabels() Labels {
	return Labels{
		NoSubject:     "(предмет не указан)",
		EmptyFragment: "Пустой фрагмент расписания.",
		NotFound:      "Расписание для группы не найдено в текущем документе.",
		UndatedDay:    "Дата не указана",
	}
}

// Render formats a timetable: the group code, then for every date a blank line, the
// date and one indented line per slot. A date without slots is still listed.
func Render(group GroupCode, tt Timetable, labels Labels) string {
	if tt.IsEmpty() {
		return labels.EmptyFragment
	}

	var sb strings.Builder
	sb.WriteString(string(group))
	for _, day := range tt.Days {
		sb.WriteString("\n\n")
		if day.Date == "" {
			sb.WriteString(labels.UndatedDay)
		} else {
			sb.WriteString(day.Date)
		}
		for _, slot := range day.Slots {
			sb.WriteString("\n")
			sb.WriteString(slotIndent)
			sb.WriteString(renderSlot(slot, labels))
		}
	}
	return sb.String()
}

func renderSlot(s Slot, labels Labels) string {
	switch {
	case s.HasTime() && s.Subject != "":
		return s.TimeRange + slotSeparator + s.Subject
	case s.HasTime():
		return s.TimeRange + slotSeparator + labels.NoSubject
	default:
		return s.Subject
	}
}

// GetSchedule extracts, parses and renders the schedule of group from the document
// text. A group that does not occur in the text is an expected outcome and yields the
// NotFound label rather than an error.
func GetSchedule(text string, group GroupCode, maxLines int, labels Labels) string {
	block, err := FindBlock(text, group, maxLines)
	if err != nil {
		return labels.NotFound
	}
	return Render(group, Parse(block), labels)
}
