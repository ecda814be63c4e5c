//go:build unix

package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bhandras/gymharness/internal/config"
	"github.com/bhandras/gymharness/internal/env"
	"github.com/stretchr/testify/require"
)

type staticPaths string

func (s staticPaths) Path(instance int) string {
	return filepath.Join(string(s), fmt.Sprintf("time_control_%d", instance))
}

type placement struct {
	id                  string
	x, y, width, height int
}

// fakeLocator serves a fixed window list and records placements.
type fakeLocator struct {
	mu      sync.Mutex
	windows []Window
	placed  []placement
}

func (f *fakeLocator) set(windows ...Window) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = windows
}

func (f *fakeLocator) Find(context.Context, string) ([]Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Window(nil), f.windows...), nil
}

func (f *fakeLocator) Place(_ context.Context, w Window, x, y, width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, placement{w.ID, x, y, width, height})
	return nil
}

func newTestLauncher(t *testing.T, app config.AppConfig) (*Launcher, string) {
	t.Helper()
	return newTestLauncherWithWindows(t, app, nil)
}

func newTestLauncherWithWindows(t *testing.T, app config.AppConfig, windows WindowLocator) (*Launcher, string) {
	t.Helper()
	root := t.TempDir()
	if app.Directory == "" {
		app.Directory = root
	}
	l, err := NewLauncher(LauncherConfig{
		App:          app,
		Run:          config.DefaultRunConfig(),
		EnvDirPrefix: filepath.Join(root, "env_"),
		SpeedPaths:   staticPaths(root),
		Windows:      windows,
	})
	require.NoError(t, err)
	return l, root
}

// readPID waits for the launcher command to exit and returns the pid it
// wrote to path.
func readPID(t *testing.T, p *Process, path string) int {
	t.Helper()
	require.Eventually(t, func() bool { return !p.Running() }, 5*time.Second, 10*time.Millisecond)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	return pid
}

func TestNewLauncherValidates(t *testing.T) {
	_, err := NewLauncher(LauncherConfig{EnvDirPrefix: "/tmp/x"})
	require.Error(t, err)

	_, err = NewLauncher(LauncherConfig{App: config.AppConfig{Command: "true"}})
	require.Error(t, err)
}

func TestLaunchReadyAndCleanup(t *testing.T) {
	l, _ := newTestLauncher(t, config.AppConfig{Command: "exec sleep 30"})

	h, err := l.Launch(context.Background(), env.Coordinates{}, 1)
	require.NoError(t, err)
	p := h.(*Process)
	t.Cleanup(func() { _ = p.Cleanup() })

	require.NoError(t, p.Tick())
	require.False(t, p.Ready())

	infoPath := filepath.Join(l.EnvDir(1), ReadyFile)
	require.NoError(t, os.WriteFile(infoPath, []byte(`{"tick":1}`+"\n"), 0o644))
	require.NoError(t, p.Tick())
	require.True(t, p.Ready())

	require.NoError(t, p.Cleanup())
	require.False(t, p.Running())
	// Cleanup is idempotent.
	require.NoError(t, p.Cleanup())
}

func TestLaunchRemovesStaleState(t *testing.T) {
	l, _ := newTestLauncher(t, config.AppConfig{Command: "exec sleep 30"})

	require.NoError(t, os.MkdirAll(l.EnvDir(0), 0o755))
	infoPath := filepath.Join(l.EnvDir(0), ReadyFile)
	require.NoError(t, os.WriteFile(infoPath, []byte("{}\n"), 0o644))

	h, err := l.Launch(context.Background(), env.Coordinates{}, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Cleanup() })

	require.NoError(t, h.Tick())
	require.False(t, h.Ready())
}

func TestLaunchExportsEnvironment(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "env.txt")
	l, _ := newTestLauncher(t, config.AppConfig{
		Command: "env > " + out,
		InitCmd: "touch " + filepath.Join(root, "init-ran"),
	})

	h, err := l.Launch(context.Background(), env.Coordinates{X: 10, Y: 20}, 2)
	require.NoError(t, err)
	p := h.(*Process)
	t.Cleanup(func() { _ = p.Cleanup() })

	require.Eventually(t, func() bool { return !p.Running() }, 5*time.Second, 10*time.Millisecond)
	// A non-separate game that exits is reported by Tick.
	require.Error(t, p.Tick())

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	vars := string(raw)
	require.Contains(t, vars, "ENV_PREFIX="+l.EnvDir(2))
	require.Contains(t, vars, "GYMHARNESS_WINDOW=640x360+10+20")
	require.Contains(t, vars, "TIME_CONTROL_PATH="+filepath.Join(filepath.Dir(l.EnvDir(2)), "time_control_2"))

	_, err = os.Stat(filepath.Join(root, "init-ran"))
	require.NoError(t, err)
}

func TestSeparateProcessSurvivesLauncherExit(t *testing.T) {
	l, _ := newTestLauncher(t, config.AppConfig{Command: "true", ProcessMode: "separate"})

	h, err := l.Launch(context.Background(), env.Coordinates{}, 3)
	require.NoError(t, err)
	p := h.(*Process)
	t.Cleanup(func() { _ = p.Cleanup() })

	require.Eventually(t, func() bool { return !p.Running() }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Tick())
}

func TestSeparateCleanupStopsDetachedGame(t *testing.T) {
	root := t.TempDir()
	pidFile := filepath.Join(root, "game.pid")
	l, _ := newTestLauncher(t, config.AppConfig{
		Command:     "sleep 300 & echo $! > " + pidFile,
		ProcessMode: "separate",
	})

	h, err := l.Launch(context.Background(), env.Coordinates{}, 4)
	require.NoError(t, err)
	p := h.(*Process)
	t.Cleanup(func() { _ = p.Cleanup() })

	game := readPID(t, p, pidFile)
	require.True(t, processAlive(game))

	require.NoError(t, p.Cleanup())
	require.False(t, processAlive(game))
}

func TestCleanupStopsGameFoundByWindow(t *testing.T) {
	root := t.TempDir()
	pidFile := filepath.Join(root, "game.pid")
	windows := &fakeLocator{}
	// setsid takes the game out of the launcher's process group.
	l, _ := newTestLauncherWithWindows(t, config.AppConfig{
		Command:     "setsid sleep 300 & echo $! > " + pidFile,
		ProcessMode: "separate",
		WindowTitle: "Noita.*",
	}, windows)

	h, err := l.Launch(context.Background(), env.Coordinates{X: 640}, 5)
	require.NoError(t, err)
	p := h.(*Process)
	t.Cleanup(func() { _ = p.Cleanup() })

	game := readPID(t, p, pidFile)
	require.True(t, processAlive(game))
	require.NotEqual(t, p.cmd.Process.Pid, processGroup(game))

	windows.set(Window{ID: "0x2", PID: game})
	require.NoError(t, p.Tick())
	require.Equal(t, game, p.GamePID())
	require.Equal(t, []placement{{"0x2", 640, 0, 640, 360}}, windows.placed)

	require.NoError(t, p.Cleanup())
	require.False(t, processAlive(game))
}

func TestLocateWindowPrefersOwnProcess(t *testing.T) {
	windows := &fakeLocator{}
	l, _ := newTestLauncherWithWindows(t, config.AppConfig{
		Command:     "exec sleep 30",
		WindowTitle: "Game",
	}, windows)

	h, err := l.Launch(context.Background(), env.Coordinates{}, 0)
	require.NoError(t, err)
	p := h.(*Process)
	t.Cleanup(func() { _ = p.Cleanup() })

	own := Window{ID: "0x2", PID: p.cmd.Process.Pid}
	// Above the kernel pid limit, so it never names a live process.
	windows.set(Window{ID: "0x1", PID: 1<<22 + 1}, own)
	require.NoError(t, p.Tick())
	require.Equal(t, own.PID, p.GamePID())

	// A second instance may not take the window the first one holds.
	h2, err := l.Launch(context.Background(), env.Coordinates{}, 1)
	require.NoError(t, err)
	p2 := h2.(*Process)
	t.Cleanup(func() { _ = p2.Cleanup() })

	windows.set(own)
	require.NoError(t, p2.Tick())
	require.Zero(t, p2.GamePID())

	// Stopping the first instance releases its window.
	require.NoError(t, p.Cleanup())
	require.False(t, l.claims.claimedByOther(own.ID, 1))
}

func TestNewLauncherTakesAppResolution(t *testing.T) {
	l, err := NewLauncher(LauncherConfig{
		App:          config.AppConfig{Command: "true", XRes: 960, YRes: 540},
		Run:          config.RunConfig{Scale: 2},
		EnvDirPrefix: "/tmp/env_",
	})
	require.NoError(t, err)

	w, h := l.windowSize()
	require.Equal(t, 1920, w)
	require.Equal(t, 1080, h)
}

func TestParseStat(t *testing.T) {
	st, err := parseStat("4242 (my (game) x) S 1 4240 4240 0 -1")
	require.NoError(t, err)
	require.Equal(t, "S", st.state)
	require.Equal(t, 4240, st.pgrp)

	_, err = parseStat("4242 no-parens")
	require.Error(t, err)
}
