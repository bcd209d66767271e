package timetable

import (
	"strings"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
)

// DefaultMaxBlockLines bounds a block when the caller passes no limit. It is far above
// the length of a multi-week schedule for one group and only guards against a
// malformed document with no following group code.
const DefaultMaxBlockLines = 400

// ScheduleBlock is the run of non-blank, trimmed lines describing one group.
type ScheduleBlock []string

// Text joins the block back into newline-separated text.
func (b ScheduleBlock) Text() string {
	return strings.Join(b, "\n")
}

// FindBlock locates the lines describing group. The block starts at the first line
// containing the code and ends right before the next line containing any group code,
// or after maxLines lines. It fails with shared.ErrBlockNotFound when the code never
// appears.
func FindBlock(text string, group GroupCode, maxLines int) (ScheduleBlock, error) {
	if maxLines <= 0 {
		maxLines = DefaultMaxBlockLines
	}
	if group == "" {
		return nil, shared.ErrBlockNotFound
	}

	lines := normalizeLines(text)

	start := -1
	for i, l := range lines {
		if strings.Contains(l, string(group)) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, shared.ErrBlockNotFound
	}

	block := make(ScheduleBlock, 0, min(maxLines, len(lines)-start))
	for _, l := range lines[start:] {
		if len(block) >= maxLines {
			break
		}
		// The first line carries the target's own code; any code after it opens the
		// next group's section.
		if len(block) > 0 && ContainsGroupCode(l) {
			break
		}
		block = append(block, l)
	}

	return trimBlankEdges(block), nil
}

func trimBlankEdges(block ScheduleBlock) ScheduleBlock {
	for len(block) > 0 && strings.TrimSpace(block[0]) == "" {
		block = block[1:]
	}
	for len(block) > 0 && strings.TrimSpace(block[len(block)-1]) == "" {
		block = block[:len(block)-1]
	}
	return block
}
