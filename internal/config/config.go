package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// RunConfig controls how an environment paces and observes its process.
type RunConfig struct {
	// App is the title of the app table entry to launch.
	App string `env:"APP" envDefault:"Noita"`
	// XRes and YRes are the observed window resolution in pixels. Zero takes
	// the app's resolution; see ForApp.
	XRes int `env:"X_RES"`
	YRes int `env:"Y_RES"`
	// Scale is the window scale factor passed to the process.
	Scale int `env:"SCALE" envDefault:"1"`
	// RunRate is the speed multiplier while a step runs.
	RunRate float32 `env:"RUN_RATE" envDefault:"4"`
	// PauseRate is the near-zero multiplier between steps.
	PauseRate float32 `env:"PAUSE_RATE" envDefault:"0.02"`
	// StepDuration is the game time one step covers.
	StepDuration time.Duration `env:"STEP_DURATION" envDefault:"166ms"`
	// PixelsEveryNEpisodes stores frames every Nth episode; 0 disables.
	PixelsEveryNEpisodes int `env:"PIXELS_EVERY_N_EPISODES" envDefault:"1"`
	// ScaleMouseCoords multiplies continuous actions before mapping them to
	// pixels. Policies often scale actions by 1/sqrt(dims); this undoes it.
	ScaleMouseCoords float64 `env:"SCALE_MOUSE_COORDS" envDefault:"3"`
}

// Config is the process-level configuration.
type Config struct {
	// Home is where gymharness stores local state.
	Home string `env:"GYMHARNESS_HOME"`
	// OutDir receives step logs and frames. Defaults to <Home>/runs.
	OutDir string `env:"GYMHARNESS_OUT_DIR"`

	// Display is the shared X display.
	Display       string `env:"GYMHARNESS_DISPLAY"        envDefault:":0"`
	DisplayWidth  int    `env:"GYMHARNESS_DISPLAY_WIDTH"  envDefault:"1920"`
	DisplayHeight int    `env:"GYMHARNESS_DISPLAY_HEIGHT" envDefault:"1080"`
	// UinputPath is the kernel uinput device used for virtual pointers.
	UinputPath string `env:"GYMHARNESS_UINPUT_PATH" envDefault:"/dev/uinput"`

	// Instances is the number of concurrent environments.
	Instances int `env:"GYMHARNESS_INSTANCES" envDefault:"1"`
	// AppsFile optionally replaces the built-in app table.
	AppsFile string `env:"GYMHARNESS_APPS_FILE"`
	// TimeControlDir holds the per-instance speed artifacts.
	TimeControlDir string `env:"GYMHARNESS_TIME_CONTROL_DIR" envDefault:"/tmp"`
	// TimeControlLib is preloaded into the game to apply the multiplier.
	TimeControlLib string `env:"GYMHARNESS_TIME_CONTROL_LIB"`
	// EnvDirPrefix plus the instance id is the per-instance exchange dir.
	EnvDirPrefix string `env:"GYMHARNESS_ENV_DIR_PREFIX" envDefault:"/tmp/env_dirs_"`
	// SkipStartup disables the menu macro after launch.
	SkipStartup bool `env:"GYMHARNESS_SKIP_STARTUP"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `env:"GYMHARNESS_LOG_LEVEL" envDefault:"info"`
	// Debug forces debug logging.
	Debug bool `env:"GYMHARNESS_DEBUG"`
	// OTELEndpoint enables trace export when set.
	OTELEndpoint string `env:"GYMHARNESS_OTEL_ENDPOINT"`

	Run RunConfig `envPrefix:"GYMHARNESS_RUN_"`
}

// Load loads configuration from the environment and defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if strings.TrimSpace(cfg.Home) == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.Home = filepath.Join(homeDir, ".gymharness")
	}
	if strings.TrimSpace(cfg.OutDir) == "" {
		cfg.OutDir = filepath.Join(cfg.Home, "runs")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that would otherwise fail deep inside a step.
func (c *Config) Validate() error {
	if c.Instances <= 0 {
		return fmt.Errorf("invalid GYMHARNESS_INSTANCES %d (expected >= 1)", c.Instances)
	}
	if c.DisplayWidth <= 0 || c.DisplayHeight <= 0 {
		return fmt.Errorf("invalid display size %dx%d", c.DisplayWidth, c.DisplayHeight)
	}
	return c.Run.Validate()
}

// Validate checks the pacing and resolution values.
func (r RunConfig) Validate() error {
	if r.XRes < 0 || r.YRes < 0 {
		return fmt.Errorf("invalid resolution %dx%d", r.XRes, r.YRes)
	}
	if r.RunRate <= 0 {
		return fmt.Errorf("invalid run rate %v (expected > 0)", r.RunRate)
	}
	if r.PauseRate < 0 {
		return fmt.Errorf("invalid pause rate %v (expected >= 0)", r.PauseRate)
	}
	if r.StepDuration <= 0 {
		return fmt.Errorf("invalid step duration %v", r.StepDuration)
	}
	if r.PixelsEveryNEpisodes < 0 {
		return fmt.Errorf("invalid pixels interval %d", r.PixelsEveryNEpisodes)
	}
	return nil
}

// EnvDir returns the exchange directory for an instance.
func (c *Config) EnvDir(instance int) string {
	return fmt.Sprintf("%s%d", c.EnvDirPrefix, instance)
}

// Ensure creates the directories the configuration points at.
func (c *Config) Ensure() error {
	for _, dir := range []string{c.Home, c.OutDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Fallback resolution for apps whose table entry has none.
const (
	DefaultXRes = 640
	DefaultYRes = 360
)

// ForApp fills an unset resolution from the app table entry, then from
// DefaultXRes and DefaultYRes.
func (r RunConfig) ForApp(app AppConfig) RunConfig {
	if r.XRes == 0 {
		r.XRes = app.XRes
	}
	if r.YRes == 0 {
		r.YRes = app.YRes
	}
	if r.XRes == 0 {
		r.XRes = DefaultXRes
	}
	if r.YRes == 0 {
		r.YRes = DefaultYRes
	}
	return r
}

// DefaultRunConfig returns the RunConfig defaults without reading the
// environment, with the fallback resolution applied.
func DefaultRunConfig() RunConfig {
	var r RunConfig
	// Parsing an empty environment only applies envDefault tags.
	_ = env.ParseWithOptions(&r, env.Options{Environment: map[string]string{}})
	return r.ForApp(AppConfig{})
}
