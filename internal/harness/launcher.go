package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/bhandras/gymharness/internal/config"
	"github.com/bhandras/gymharness/internal/env"
	"github.com/bhandras/gymharness/pkg/logger"
)

// SpeedPaths resolves the time-control artifact for an instance.
type SpeedPaths interface {
	Path(instance int) string
}

// LauncherConfig configures a Launcher.
type LauncherConfig struct {
	App config.AppConfig
	Run config.RunConfig
	// Display is exported to the game as DISPLAY.
	Display string
	// EnvDirPrefix plus the instance id is the game's exchange directory.
	EnvDirPrefix string
	// SpeedPaths, when set, exports TIME_CONTROL_PATH.
	SpeedPaths SpeedPaths
	// TimeControlLib, when set, is preloaded into the game.
	TimeControlLib string
	Capturer       Capturer
	// Windows, when set, locates the app's window by its title. Stopping a
	// detached game relies on the pid found this way.
	Windows WindowLocator
}

// Launcher starts game processes.
type Launcher struct {
	cfg    LauncherConfig
	claims *windowClaims
}

var _ env.Launcher = (*Launcher)(nil)

// NewLauncher returns a Launcher for one app.
func NewLauncher(cfg LauncherConfig) (*Launcher, error) {
	if cfg.App.Command == "" {
		return nil, errors.New("app has no command")
	}
	if cfg.EnvDirPrefix == "" {
		return nil, errors.New("env dir prefix is required")
	}
	cfg.Run = cfg.Run.ForApp(cfg.App)
	return &Launcher{cfg: cfg, claims: newWindowClaims()}, nil
}

// EnvDir returns the exchange directory for an instance.
func (l *Launcher) EnvDir(instance int) string {
	return l.cfg.EnvDirPrefix + strconv.Itoa(instance)
}

// Launch implements env.Launcher. It prepares the env dir, runs the app's
// init command and starts the game. Readiness is reported later through
// Process.Tick.
func (l *Launcher) Launch(ctx context.Context, coords env.Coordinates, instance int) (env.Handle, error) {
	envDir := l.EnvDir(instance)
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		return nil, fmt.Errorf("create env dir: %w", err)
	}
	// A state file left by the previous process would mark the new one ready.
	if err := os.Remove(filepath.Join(envDir, ReadyFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale state: %w", err)
	}

	if l.cfg.App.InitCmd != "" {
		initCmd := exec.CommandContext(ctx, "sh", "-c", l.cfg.App.InitCmd)
		if out, err := initCmd.CombinedOutput(); err != nil {
			// Init commands are cleanup helpers; a miss (e.g. nothing to delete)
			// must not block the launch.
			logger.Warnf("harness[%d]: init command failed: %v: %s", instance, err, out)
		}
	}

	cmd := exec.Command("sh", "-c", l.cfg.App.Command)
	cmd.Dir = l.cfg.App.Directory
	cmd.Env = append(os.Environ(), l.environment(coords, envDir, instance)...)

	winWidth, winHeight := l.windowSize()
	p := &Process{
		cmd:         cmd,
		instance:    instance,
		envDir:      envDir,
		separate:    l.cfg.App.ProcessMode == "separate",
		coords:      coords,
		width:       l.cfg.Run.XRes,
		height:      l.cfg.Run.YRes,
		capturer:    l.cfg.Capturer,
		windowTitle: l.cfg.App.WindowTitle,
		locator:     l.cfg.Windows,
		claims:      l.claims,
		winWidth:    winWidth,
		winHeight:   winHeight,
	}
	if err := p.start(); err != nil {
		return nil, err
	}
	return p, nil
}

// windowSize is the on-screen window size: the observed resolution times
// the scale factor.
func (l *Launcher) windowSize() (int, int) {
	scale := max(l.cfg.Run.Scale, 1)
	return l.cfg.Run.XRes * scale, l.cfg.Run.YRes * scale
}

func (l *Launcher) environment(coords env.Coordinates, envDir string, instance int) []string {
	w, h := l.windowSize()
	vars := []string{
		"ENV_PREFIX=" + envDir,
		"GYMHARNESS_INSTANCE=" + strconv.Itoa(instance),
		"GYMHARNESS_WINDOW=" + fmt.Sprintf("%dx%d+%d+%d", w, h, coords.X, coords.Y),
	}
	if l.cfg.Display != "" {
		vars = append(vars, "DISPLAY="+l.cfg.Display)
	}
	if l.cfg.SpeedPaths != nil {
		vars = append(vars, "TIME_CONTROL_PATH="+l.cfg.SpeedPaths.Path(instance))
	}
	if l.cfg.TimeControlLib != "" {
		vars = append(vars, "LD_PRELOAD="+l.cfg.TimeControlLib)
	}
	return vars
}
