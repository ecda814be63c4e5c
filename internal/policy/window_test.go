package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearInterpolator(t *testing.T) {
	l := LinearInterpolator{X0: 0, X1: 10, Y0: 100, Y1: 200}
	require.Equal(t, 100.0, l.Value(0))
	require.Equal(t, 150.0, l.Value(5))
	require.Equal(t, 200.0, l.Value(10))
	require.Equal(t, 200.0, l.Value(50))
	require.Equal(t, 100.0, l.Value(-5))

	l.Extrapolate = true
	require.Equal(t, 300.0, l.Value(20))
}

func TestGrowingFIFOWindow(t *testing.T) {
	f := NewGrowingFIFO(4)
	f.Push(1, 1)
	require.Equal(t, []float64{1}, f.Window())

	f.Push(2, 2)
	require.Equal(t, []float64{1, 2}, f.Window())

	// Growing the window exposes older values still in the buffer.
	f.Push(3, 1)
	require.Equal(t, []float64{3}, f.Window())
	f.Push(4, 3)
	require.Equal(t, []float64{2, 3, 4}, f.Window())

	// Capacity caps both the buffer and the window.
	f.Push(5, 10)
	require.Equal(t, []float64{2, 3, 4, 5}, f.Window())
	f.Push(0, 10)
	require.Equal(t, []float64{3, 4, 5, 0}, f.Window())
	require.Equal(t, 3, f.CountNonZero())
}
