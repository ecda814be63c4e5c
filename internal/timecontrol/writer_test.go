package timecontrol

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetSpeedWritesFloat32(t *testing.T) {
	w := NewWriter(t.TempDir())

	require.NoError(t, w.SetSpeed(2.5, 3))

	raw, err := os.ReadFile(w.Path(3))
	require.NoError(t, err)
	// 2.5 == 0x40200000, little-endian.
	require.Equal(t, []byte{0x00, 0x00, 0x20, 0x40}, raw)
}

func TestSetSpeedIsPerInstance(t *testing.T) {
	w := NewWriter(t.TempDir())

	require.NoError(t, w.SetSpeed(1, 0))
	require.NoError(t, w.SetSpeed(2.5, 3))
	require.NoError(t, w.SetSpeed(0.02, 1))

	got, err := w.ReadSpeed(3)
	require.NoError(t, err)
	require.Equal(t, float32(2.5), got)

	got, err = w.ReadSpeed(0)
	require.NoError(t, err)
	require.Equal(t, float32(1), got)
}

func TestSetSpeedLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	require.NoError(t, w.SetSpeed(4, 2))
	require.NoError(t, w.SetSpeed(0.02, 2))

	got, err := w.ReadSpeed(2)
	require.NoError(t, err)
	require.Equal(t, float32(0.02), got)

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Base(w.Path(2)), entries[0].Name())
}

func TestSetSpeedRejectsNegativeInstance(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.Error(t, w.SetSpeed(1, -1))
}

func TestDecodeRejectsShortMessage(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestNewWriterDefaultsDir(t *testing.T) {
	w := NewWriter(" ")
	require.Equal(t, filepath.Join(DefaultDir, "time_control_7"), w.Path(7))
}
