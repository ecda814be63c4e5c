package input

import (
	"fmt"
	"sort"
)

// Key names a keyboard key using X keysym-style names ("W", "Return", ...).
type Key string

// MouseButton identifies a pointer button.
type MouseButton int

const (
	// ButtonLeft is the primary pointer button.
	ButtonLeft MouseButton = iota + 1
	// ButtonRight is the secondary pointer button.
	ButtonRight
)

// String implements fmt.Stringer.
func (b MouseButton) String() string {
	switch b {
	case ButtonLeft:
		return "LMB"
	case ButtonRight:
		return "RMB"
	default:
		return fmt.Sprintf("button(%d)", int(b))
	}
}

// keyCodes maps key names to Linux evdev key codes (input-event-codes.h).
var keyCodes = map[Key]int{
	"Escape": 1,
	"1":      2,
	"2":      3,
	"3":      4,
	"4":      5,
	"5":      6,
	"6":      7,
	"7":      8,
	"8":      9,
	"9":      10,
	"0":      11,
	"Tab":    15,
	"Q":      16,
	"W":      17,
	"E":      18,
	"R":      19,
	"T":      20,
	"Y":      21,
	"U":      22,
	"I":      23,
	"O":      24,
	"P":      25,
	"Return": 28,
	"Ctrl":   29,
	"A":      30,
	"S":      31,
	"D":      32,
	"F":      33,
	"G":      34,
	"H":      35,
	"J":      36,
	"K":      37,
	"L":      38,
	"Shift":  42,
	"Z":      44,
	"X":      45,
	"C":      46,
	"V":      47,
	"B":      48,
	"N":      49,
	"M":      50,
	"space":  57,
	"Up":     103,
	"Left":   105,
	"Right":  106,
	"Down":   108,
}

// KeyCode returns the evdev code for k.
func KeyCode(k Key) (int, error) {
	code, ok := keyCodes[k]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, string(k))
	}
	return code, nil
}

func sortedKeys(set map[Key]struct{}) []Key {
	out := make([]Key, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedButtons(set map[MouseButton]struct{}) []MouseButton {
	out := make([]MouseButton, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
