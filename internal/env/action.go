package env

import (
	"fmt"
	"math"

	"github.com/bhandras/gymharness/internal/input"
)

// Input is one choice within a discrete action dimension: a key, a mouse
// button, or nothing.
type Input struct {
	Key    input.Key
	Button input.MouseButton
}

// None reports whether the choice produces no input.
func (i Input) None() bool {
	return i.Key == "" && i.Button == 0
}

// Key returns an Input that holds key k.
func Key(k input.Key) Input { return Input{Key: k} }

// Button returns an Input that holds button b.
func Button(b input.MouseButton) Input { return Input{Button: b} }

// InputSpace is the per-dimension table of discrete choices. Index 0 of every
// dimension must be the empty Input.
type InputSpace [][]Input

// DefaultInputSpace is the input table for the default game: movement,
// interaction, wand and item slots, and the two mouse buttons.
func DefaultInputSpace() InputSpace {
	none := Input{}
	return InputSpace{
		{none, Key("W"), Key("S")},
		{none, Key("A"), Key("D")},
		{none, Key("F")},
		{none, Key("E")},
		// Slot 2 holds the bomb; leaving it out keeps early policies alive.
		{none, Key("1"), Key("3"), Key("4")},
		{none, Key("5"), Key("6"), Key("7"), Key("8")},
		{none, Button(input.ButtonLeft), Button(input.ButtonRight)},
	}
}

// InputSpaceFromKeys builds one on/off dimension per named key, as listed in
// an app table. "LMB" and "RMB" name the mouse buttons.
func InputSpaceFromKeys(names []string) (InputSpace, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no keys")
	}
	space := make(InputSpace, 0, len(names))
	for _, name := range names {
		var choice Input
		switch name {
		case input.ButtonLeft.String():
			choice = Button(input.ButtonLeft)
		case input.ButtonRight.String():
			choice = Button(input.ButtonRight)
		default:
			if _, err := input.KeyCode(input.Key(name)); err != nil {
				return nil, err
			}
			choice = Key(input.Key(name))
		}
		space = append(space, []Input{{}, choice})
	}
	return space, nil
}

// Validate checks the no-input convention.
func (s InputSpace) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("input space has no dimensions")
	}
	for d, dim := range s {
		if len(dim) == 0 || !dim[0].None() {
			return fmt.Errorf("input space dimension %d must start with no input", d)
		}
	}
	return nil
}

// Sizes returns the number of choices per dimension.
func (s InputSpace) Sizes() []int {
	out := make([]int, len(s))
	for i, dim := range s {
		out[i] = len(dim)
	}
	return out
}

// Action is a discrete index per input dimension plus a 2-element continuous
// cursor vector in [-1, 1].
type Action struct {
	Discrete   []int
	Continuous [2]float64
}

// ActionFromFlat splits a flattened action (discrete indices followed by the
// two continuous values) as produced by policies that flatten tuple spaces.
func ActionFromFlat(flat []float64, dims int) (Action, error) {
	if len(flat) != dims+2 {
		return Action{}, fmt.Errorf("%w: flat action has %d values, want %d",
			ErrInvalidAction, len(flat), dims+2)
	}
	a := Action{Discrete: make([]int, dims)}
	for i := 0; i < dims; i++ {
		a.Discrete[i] = int(flat[i])
	}
	a.Continuous = [2]float64{flat[dims], flat[dims+1]}
	return a, nil
}

// Decode maps the discrete part of an action to held keys and buttons. It
// also rejects non-finite cursor values.
func (s InputSpace) Decode(a Action) ([]input.Key, []input.MouseButton, error) {
	if len(a.Discrete) != len(s) {
		return nil, nil, fmt.Errorf("%w: %d discrete values for %d dimensions",
			ErrInvalidAction, len(a.Discrete), len(s))
	}

	var (
		keys    []input.Key
		buttons []input.MouseButton
	)
	for i, c := range a.Continuous {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, nil, fmt.Errorf("%w: continuous value %d is %v",
				ErrInvalidAction, i, c)
		}
	}

	for d, idx := range a.Discrete {
		if idx < 0 || idx >= len(s[d]) {
			return nil, nil, fmt.Errorf("%w: index %d out of range for dimension %d",
				ErrInvalidAction, idx, d)
		}
		choice := s[d][idx]
		switch {
		case choice.Key != "":
			keys = append(keys, choice.Key)
		case choice.Button != 0:
			buttons = append(buttons, choice.Button)
		}
	}
	return keys, buttons, nil
}

// CursorPosition maps a continuous action to window pixel coordinates: each
// value is multiplied by scale, remapped from [-1, 1] to [0, 1], then
// multiplied by the resolution.
func CursorPosition(c [2]float64, scale float64, xRes, yRes int) (int, int) {
	x := (c[0]*scale + 1) / 2 * float64(xRes)
	y := (c[1]*scale + 1) / 2 * float64(yRes)
	return int(math.Round(x)), int(math.Round(y))
}
