package env

import (
	"math"
	"testing"

	"github.com/bhandras/gymharness/internal/input"
	"github.com/stretchr/testify/require"
)

func TestDecodeZeroActionHoldsNothing(t *testing.T) {
	space := DefaultInputSpace()
	keys, buttons, err := space.Decode(Action{Discrete: make([]int, len(space))})
	require.NoError(t, err)
	require.Empty(t, keys)
	require.Empty(t, buttons)
}

func TestDecodeMapsIndexes(t *testing.T) {
	space := DefaultInputSpace()
	keys, buttons, err := space.Decode(Action{Discrete: []int{1, 2, 0, 1, 3, 0, 2}})
	require.NoError(t, err)
	require.Equal(t, []input.Key{"W", "D", "E", "4"}, keys)
	require.Equal(t, []input.MouseButton{input.ButtonRight}, buttons)
}

func TestDecodeRejectsBadActions(t *testing.T) {
	space := DefaultInputSpace()

	_, _, err := space.Decode(Action{Discrete: []int{0, 0}})
	require.ErrorIs(t, err, ErrInvalidAction)

	_, _, err = space.Decode(Action{Discrete: []int{3, 0, 0, 0, 0, 0, 0}})
	require.ErrorIs(t, err, ErrInvalidAction)

	_, _, err = space.Decode(Action{Discrete: []int{-1, 0, 0, 0, 0, 0, 0}})
	require.ErrorIs(t, err, ErrInvalidAction)
}

func TestDecodeRejectsNonFiniteCursor(t *testing.T) {
	space := DefaultInputSpace()
	for _, c := range [][2]float64{
		{math.NaN(), 0},
		{0, math.Inf(1)},
		{math.Inf(-1), 0},
	} {
		_, _, err := space.Decode(Action{Discrete: make([]int, len(space)), Continuous: c})
		require.ErrorIs(t, err, ErrInvalidAction)
	}
}

func TestInputSpaceFromKeys(t *testing.T) {
	space, err := InputSpaceFromKeys([]string{"W", "Shift", "LMB", "RMB"})
	require.NoError(t, err)
	require.NoError(t, space.Validate())
	require.Equal(t, []int{2, 2, 2, 2}, space.Sizes())

	keys, buttons, err := space.Decode(Action{Discrete: []int{1, 1, 0, 1}})
	require.NoError(t, err)
	require.Equal(t, []input.Key{"W", "Shift"}, keys)
	require.Equal(t, []input.MouseButton{input.ButtonRight}, buttons)

	_, err = InputSpaceFromKeys([]string{"W", "Hyper"})
	require.ErrorIs(t, err, input.ErrUnknownKey)

	_, err = InputSpaceFromKeys(nil)
	require.Error(t, err)
}

func TestInputSpaceValidate(t *testing.T) {
	require.NoError(t, DefaultInputSpace().Validate())
	require.Equal(t, []int{3, 3, 2, 2, 4, 5, 3}, DefaultInputSpace().Sizes())

	bad := InputSpace{{Key("W"), Input{}}}
	require.Error(t, bad.Validate())
	require.Error(t, InputSpace{}.Validate())
}

func TestCursorPositionCorners(t *testing.T) {
	x, y := CursorPosition([2]float64{-1, -1}, 1, 640, 360)
	require.Equal(t, 0, x)
	require.Equal(t, 0, y)

	x, y = CursorPosition([2]float64{1, 1}, 1, 640, 360)
	require.Equal(t, 640, x)
	require.Equal(t, 360, y)

	x, y = CursorPosition([2]float64{0, 0}, 3, 640, 360)
	require.Equal(t, 320, x)
	require.Equal(t, 180, y)

	// Scaled values are not clamped here; the device clamps to the display.
	x, _ = CursorPosition([2]float64{1.0 / 3, 0}, 3, 640, 360)
	require.Equal(t, 640, x)
}

func TestActionFromFlat(t *testing.T) {
	a, err := ActionFromFlat([]float64{1, 0, 0, 0, 2, 0, 1, 0.5, -0.5}, 7)
	require.NoError(t, err)
	require.Equal(t, []int{1, 0, 0, 0, 2, 0, 1}, a.Discrete)
	require.Equal(t, [2]float64{0.5, -0.5}, a.Continuous)

	_, err = ActionFromFlat([]float64{1, 2, 3}, 7)
	require.ErrorIs(t, err, ErrInvalidAction)
}
