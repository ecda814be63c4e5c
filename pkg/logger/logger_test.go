package logger

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace":   LevelTrace,
		"DEBUG":   LevelDebug,
		"":        LevelInfo,
		" info ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestLevelThreshold(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFlags(0)
	t.Cleanup(func() {
		SetLevel(LevelInfo)
		SetOutput(os.Stderr)
		SetFlags(log.LstdFlags | log.Lmicroseconds)
	})

	SetLevel(LevelWarn)
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "[WARN] shown 2")
	require.False(t, Enabled(LevelDebug))
	require.True(t, Enabled(LevelError))
}
