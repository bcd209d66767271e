// Package presenter formats data for Telegram display: message texts and the
// inline keyboards of the group selection flow.
package presenter

import (
	"strconv"
	"strings"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACK DATA
// Callback data has the form "<prefix>|<payload>". Telegram limits it to 64
// bytes, so long unit names travel as "#<position>" in the sorted unit list.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// PrefixInstitute opens the group list of a unit.
	PrefixInstitute = "institute"

	// PrefixGroup selects a group, or switches to manual input with PayloadManual.
	PrefixGroup = "group"

	// PayloadManual is the "my group is missing" button.
	PayloadManual = "manual"

	// MaxCallbackData is Telegram's limit for callback data, in bytes.
	MaxCallbackData = 64

	callbackSeparator = "|"
	unitRefMarker     = "#"
)

// Keyboard limits.
const (
	MaxUnitButtons  = 20
	MaxGroupButtons = 10
	UnitsPerRow     = 2
	GroupsPerRow    = 2
)

// CallbackData joins a prefix and a payload.
func CallbackData(prefix, payload string) string {
	return prefix + callbackSeparator + payload
}

// ParseCallbackData splits callback data into prefix and payload. Data without a
// separator is returned as prefix with an empty payload.
func ParseCallbackData(data string) (prefix, payload string) {
	prefix, payload, _ = strings.Cut(data, callbackSeparator)
	return prefix, payload
}

// InstituteCallbackData returns the callback data for the unit at position pos.
func InstituteCallbackData(unit string, pos int) string {
	data := CallbackData(PrefixInstitute, unit)
	if len(data) <= MaxCallbackData {
		return data
	}
	return CallbackData(PrefixInstitute, unitRefMarker+strconv.Itoa(pos))
}

// UnitRef is a decoded institute payload.
type UnitRef struct {
	// Name is set when the payload carried the unit name.
	Name string

	// Position is set (>= 0) when the payload carried a list position.
	Position int
}

// ParseUnitRef decodes an institute payload.
func ParseUnitRef(payload string) UnitRef {
	if rest, ok := strings.CutPrefix(payload, unitRefMarker); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 {
			return UnitRef{Position: n}
		}
	}
	return UnitRef{Name: payload, Position: -1}
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARDS
// ══════════════════════════════════════════════════════════════════════════════

// ManualGroupButtonText is the label of the manual input button.
const ManualGroupButtonText = "Нету моей группы"

// UnitsKeyboard lays out unit buttons two per row.
func UnitsKeyboard(units []string) *telegram.InlineKeyboardMarkup {
	buttons := make([]telegram.InlineKeyboardButton, 0, len(units))
	for i, unit := range units {
		buttons = append(buttons, telegram.Button(unit, InstituteCallbackData(unit, i)))
	}
	return telegram.NewKeyboard().Grid(UnitsPerRow, buttons...).Build()
}

// GroupsKeyboard lays out group buttons followed by the manual input button.
func GroupsKeyboard(groups []timetable.GroupCode) *telegram.InlineKeyboardMarkup {
	buttons := make([]telegram.InlineKeyboardButton, 0, len(groups))
	for _, g := range groups {
		buttons = append(buttons, telegram.Button(g.String(), CallbackData(PrefixGroup, g.String())))
	}
	return telegram.NewKeyboard().
		Grid(GroupsPerRow, buttons...).
		Row(telegram.Button(ManualGroupButtonText, CallbackData(PrefixGroup, PayloadManual))).
		Build()
}
