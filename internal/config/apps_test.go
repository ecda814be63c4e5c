package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppsDefaultTable(t *testing.T) {
	apps, err := LoadApps("")
	require.NoError(t, err)
	require.Contains(t, apps.Titles(), "Noita")
	require.Contains(t, apps.Titles(), "Factorio")

	noita, err := apps.Find("Noita")
	require.NoError(t, err)
	require.Equal(t, "steam steam://rungameid/881100", noita.Command)
	require.Equal(t, "separate", noita.ProcessMode)
	require.Equal(t, 80*time.Millisecond, noita.SequenceKeydownTime)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, home, noita.Directory)

	factorio, err := apps.Find("Factorio")
	require.NoError(t, err)
	require.Len(t, factorio.Keys, 12)
}

func TestLoadAppsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[app]]
conf_title = "Toy"
directory = "/opt/toy"
command = "./toy --windowed"
x_res = 320
y_res = 240
`), 0o600))

	apps, err := LoadApps(path)
	require.NoError(t, err)
	require.Equal(t, []string{"Toy"}, apps.Titles())

	toy, err := apps.Find("Toy")
	require.NoError(t, err)
	require.Equal(t, "/opt/toy", toy.Directory)
	require.Equal(t, 320, toy.XRes)

	_, err = apps.Find("Noita")
	require.Error(t, err)
}

func TestLoadAppsMissingFile(t *testing.T) {
	_, err := LoadApps(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/games")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "games"), got)

	got, err = ExpandHome("/abs/path")
	require.NoError(t, err)
	require.Equal(t, "/abs/path", got)
}
