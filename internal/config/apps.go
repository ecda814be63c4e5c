package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig describes how to launch one game.
type AppConfig struct {
	Title       string `mapstructure:"conf_title"`
	Directory   string `mapstructure:"directory"`
	Command     string `mapstructure:"command"`
	WindowTitle string `mapstructure:"window_title"`
	XRes        int    `mapstructure:"x_res"`
	YRes        int    `mapstructure:"y_res"`
	// InitCmd runs through the shell before every launch (e.g. wiping saves).
	InitCmd string `mapstructure:"init_cmd"`
	// ProcessMode is "separate" for launchers that detach the real game.
	ProcessMode string   `mapstructure:"process_mode"`
	Keys        []string `mapstructure:"keys"`
	// SequenceKeydownTime is the hold time for scripted key sequences.
	SequenceKeydownTime time.Duration `mapstructure:"sequence_keydown_time"`
}

// defaultAppsTOML is the built-in app table. Steam titles use stable paths;
// manually installed games usually need an apps file.
const defaultAppsTOML = `
[[app]]
conf_title = "Skyrogue"
directory = "~/.local/share/Steam/steamapps/common/Sky Rogue"
command = "./skyrogue.x86"
window_title = "Sky Rogue"
x_res = 640
y_res = 480

[[app]]
conf_title = "Firefox"
directory = "./"
command = "firefox"
window_title = "Mozilla Firefox"
x_res = 960
y_res = 540

[[app]]
conf_title = "Art of Rally"
directory = "~/.local/share/Steam/steamapps/common/artofrally"
command = "steam steam://rungameid/550320"
window_title = "art of rally"
x_res = 1920
y_res = 1080

[[app]]
conf_title = "Factorio"
directory = "~/Downloads/factorio/bin/x64"
command = "./factorio"
window_title = "Factorio 1.1.53"
x_res = 960
y_res = 540
keys = ["W", "A", "S", "D", "E", "R", "T", "Shift", "Tab", "Ctrl", "LMB", "RMB"]

[[app]]
conf_title = "Noita"
directory = "~/"
command = "steam steam://rungameid/881100"
window_title = "Noita.*"
init_cmd = "rm -r ~/.steam/steam/steamapps/compatdata/881100/pfx/drive_c/users/steamuser/AppData/LocalLow/Nolla_Games_Noita/save0*"
process_mode = "separate"
sequence_keydown_time = "80ms"
`

// Apps is a loaded app table.
type Apps struct {
	apps []AppConfig
}

// LoadApps reads the app table from path, or the built-in table when path is
// empty.
func LoadApps(path string) (*Apps, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read apps file: %w", err)
		}
	} else if err := v.ReadConfig(strings.NewReader(defaultAppsTOML)); err != nil {
		return nil, fmt.Errorf("read default apps: %w", err)
	}

	var apps []AppConfig
	if err := v.UnmarshalKey("app", &apps); err != nil {
		return nil, fmt.Errorf("unmarshal apps: %w", err)
	}
	return &Apps{apps: apps}, nil
}

// Titles returns the titles in table order.
func (a *Apps) Titles() []string {
	out := make([]string, 0, len(a.apps))
	for _, app := range a.apps {
		out = append(out, app.Title)
	}
	return out
}

// Find returns the app with the given title with its directory expanded.
func (a *Apps) Find(title string) (AppConfig, error) {
	for _, app := range a.apps {
		if app.Title != title {
			continue
		}
		dir, err := ExpandHome(app.Directory)
		if err != nil {
			return AppConfig{}, err
		}
		app.Directory = dir
		return app, nil
	}
	return AppConfig{}, fmt.Errorf("unknown app %q", title)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
