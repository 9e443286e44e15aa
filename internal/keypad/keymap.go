// Package keypad turns a stream of key symbols from a physical keypad
// or a remote event stream into validated tenant codes and charge
// requests.
package keypad

import "strings"

// Symbol is a normalized key: a single digit "0".."9", ENTER or CANCEL.
type Symbol string

const (
	SymEnter  Symbol = "ENTER"
	SymCancel Symbol = "CANCEL"
)

// Digit returns the numeric value for digit symbols.
func (s Symbol) Digit() (int, bool) {
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		return int(s[0] - '0'), true
	}
	return 0, false
}

// IsDigit reports whether the symbol is a single digit.
func (s Symbol) IsDigit() bool {
	_, ok := s.Digit()
	return ok
}

// Linux input event codes for the main-row and numeric-keypad digits.
var (
	mainRowDigits = map[int]Symbol{
		2: "1", 3: "2", 4: "3", 5: "4", 6: "5",
		7: "6", 8: "7", 9: "8", 10: "9", 11: "0",
	}
	numPadDigits = map[int]Symbol{
		79: "1", 80: "2", 81: "3", 75: "4", 76: "5",
		77: "6", 71: "7", 72: "8", 73: "9", 82: "0",
	}
)

// MapKeyCode maps a raw key code to a symbol.
func MapKeyCode(code int) (Symbol, bool) {
	if s, ok := mainRowDigits[code]; ok {
		return s, true
	}
	if s, ok := numPadDigits[code]; ok {
		return s, true
	}
	switch code {
	case 28, 96, 43: // Enter, KP_Enter, '#'
		return SymEnter, true
	case 1, 14, 15, 111: // Esc, Backspace, Tab, Delete
		return SymCancel, true
	}
	return "", false
}

// MapKeyName maps an event key name (with or without the KEY_ prefix)
// to a symbol.
func MapKeyName(name string) (Symbol, bool) {
	if name == "" {
		return "", false
	}
	k := strings.ToUpper(strings.TrimPrefix(name, "KEY_"))
	switch k {
	case "ENTER", "KPENTER", "HASHTAG":
		return SymEnter, true
	case "KPASTERISK", "ESC", "BACKSPACE", "DELETE", "DEL", "TAB", "INS":
		return SymCancel, true
	}
	if len(k) == 3 && strings.HasPrefix(k, "KP") && k[2] >= '0' && k[2] <= '9' {
		return Symbol(k[2:]), true
	}
	if len(k) == 1 && k[0] >= '0' && k[0] <= '9' {
		return Symbol(k), true
	}
	return "", false
}
