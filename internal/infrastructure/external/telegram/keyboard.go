package telegram

import "slices"

// Button creates a callback button.
func Button(text, callbackData string) InlineKeyboardButton {
	return InlineKeyboardButton{Text: text, CallbackData: callbackData}
}

// KeyboardBuilder accumulates rows of an inline keyboard.
type KeyboardBuilder struct {
	rows [][]InlineKeyboardButton
}

// NewKeyboard starts an empty keyboard.
func NewKeyboard() *KeyboardBuilder {
	return &KeyboardBuilder{rows: [][]InlineKeyboardButton{}}
}

// Row appends one row holding buttons.
func (kb *KeyboardBuilder) Row(buttons ...InlineKeyboardButton) *KeyboardBuilder {
	kb.rows = append(kb.rows, buttons)
	return kb
}

// Grid appends buttons perRow to a row; the last row may be shorter.
func (kb *KeyboardBuilder) Grid(perRow int, buttons ...InlineKeyboardButton) *KeyboardBuilder {
	for row := range slices.Chunk(buttons, max(perRow, 1)) {
		kb.rows = append(kb.rows, slices.Clip(row))
	}
	return kb
}

// Build returns the markup.
func (kb *KeyboardBuilder) Build() *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: kb.rows}
}
