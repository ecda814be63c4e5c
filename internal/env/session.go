package env

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bhandras/gymharness/internal/clock"
	"github.com/bhandras/gymharness/internal/config"
	"github.com/bhandras/gymharness/internal/input"
	"github.com/bhandras/gymharness/pkg/logger"
)

const (
	// MaxResetAttempts bounds how many launches one Reset tries.
	MaxResetAttempts = 3
	// ReadyTimeout is the watchdog for a launched process to become ready.
	ReadyTimeout = 45 * time.Second
	// ReadyPollInterval is how often the watchdog polls Ready.
	ReadyPollInterval = time.Second

	releaseSettle  = 100 * time.Millisecond
	teardownSettle = time.Second
	startupDelay   = 2500 * time.Millisecond
	startupSettle  = 8 * time.Second
)

// DefaultMenuMacro dismisses the changelog and starts a new game.
var DefaultMenuMacro = []input.Key{"Return", "Down", "Return", "Return"}

var tracer = otel.Tracer("github.com/bhandras/gymharness/internal/env")

// SessionConfig configures one environment instance.
type SessionConfig struct {
	Instance    int
	Seed        uint32
	Coordinates Coordinates
	Run         config.RunConfig
	// InputSpace defaults to DefaultInputSpace.
	InputSpace InputSpace
	// SkipStartup disables the menu macro after a launch.
	SkipStartup bool
	// MenuMacro defaults to DefaultMenuMacro.
	MenuMacro []input.Key
}

// Deps are the collaborators a Session drives. Launcher, Input, Speed, Info
// and Reward are required.
type Deps struct {
	Launcher Launcher
	Input    InputChannel
	Speed    SpeedSetter
	Info     InfoSource
	Reward   RewardFunc
	Policy   Policy
	Seeder   Seeder
	Recorder Recorder
	// Sync defaults to a PollingSync built from the run config.
	Sync  TickSync
	Clock clock.Clock
}

// Session is the per-instance controller.
type Session struct {
	cfg  SessionConfig
	deps Deps

	handle Handle
	state  State

	episode     int
	episodeStep int
	envStep     int64
}

// NewSession validates the configuration and returns an idle session. Call
// Reset before the first Step.
func NewSession(cfg SessionConfig, deps Deps) (*Session, error) {
	if cfg.Instance < 0 {
		return nil, fmt.Errorf("invalid instance %d", cfg.Instance)
	}
	if err := cfg.Run.Validate(); err != nil {
		return nil, err
	}
	if cfg.Run.XRes == 0 || cfg.Run.YRes == 0 {
		return nil, errors.New("session requires a resolved resolution (see RunConfig.ForApp)")
	}
	if cfg.InputSpace == nil {
		cfg.InputSpace = DefaultInputSpace()
	}
	if err := cfg.InputSpace.Validate(); err != nil {
		return nil, err
	}
	if cfg.MenuMacro == nil {
		cfg.MenuMacro = DefaultMenuMacro
	}
	switch {
	case deps.Launcher == nil:
		return nil, errors.New("session requires a launcher")
	case deps.Input == nil:
		return nil, errors.New("session requires an input channel")
	case deps.Speed == nil:
		return nil, errors.New("session requires a speed setter")
	case deps.Info == nil:
		return nil, errors.New("session requires an info source")
	case deps.Reward == nil:
		return nil, errors.New("session requires a reward function")
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Sync == nil {
		deps.Sync = &PollingSync{
			Instance:     cfg.Instance,
			Speed:        deps.Speed,
			Info:         deps.Info,
			Clock:        deps.Clock,
			RunRate:      cfg.Run.RunRate,
			PauseRate:    cfg.Run.PauseRate,
			StepDuration: cfg.Run.StepDuration,
		}
	}
	return &Session{cfg: cfg, deps: deps}, nil
}

// Instance returns the instance id.
func (s *Session) Instance() int { return s.cfg.Instance }

// State returns the controller state.
func (s *Session) State() State { return s.state }

// Seed returns the world seed applied on every reset.
func (s *Session) Seed() uint32 { return s.cfg.Seed }

// SetSeed changes the world seed used by the next reset.
func (s *Session) SetSeed(seed uint32) { s.cfg.Seed = seed }

// InputSpace returns the discrete action table.
func (s *Session) InputSpace() InputSpace { return s.cfg.InputSpace }

// RunInfo returns the episode and step counters.
func (s *Session) RunInfo() RunInfo {
	return RunInfo{
		Episode:     s.episode,
		EpisodeStep: s.episodeStep,
		EnvStep:     s.envStep,
	}
}

// Reset relaunches the process and returns the first observation. Failed
// attempts are retried up to MaxResetAttempts times; after that the returned
// error wraps ErrResetExhausted and the last attempt's error.
func (s *Session) Reset(ctx context.Context) (Observation, error) {
	ctx, span := tracer.Start(ctx, "env.Reset", trace.WithAttributes(
		attribute.Int("env.instance", s.cfg.Instance),
		attribute.Int64("env.seed", int64(s.cfg.Seed)),
	))
	defer span.End()

	if err := s.deps.Speed.SetSpeed(1, s.cfg.Instance); err != nil {
		logger.Warnf("env[%d]: reset speed: %v", s.cfg.Instance, err)
	}

	var lastErr error
	for attempt := 1; attempt <= MaxResetAttempts; attempt++ {
		err := s.tryReset(ctx)
		if err == nil {
			span.SetAttributes(
				attribute.Int("env.episode", s.episode),
				attribute.Int("env.reset_attempts", attempt),
			)
			return s.observe(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.RecordError(ctxErr)
			span.SetStatus(codes.Error, "reset canceled")
			return Observation{}, ctxErr
		}
		lastErr = err
		logger.Warnf("env[%d]: reset attempt %d/%d failed: %v, retrying",
			s.cfg.Instance, attempt, MaxResetAttempts, err)
	}

	err := fmt.Errorf("%w: instance %d: %w", ErrResetExhausted, s.cfg.Instance, lastErr)
	span.RecordError(err)
	span.SetStatus(codes.Error, "reset exhausted")
	return Observation{}, err
}

func (s *Session) tryReset(ctx context.Context) error {
	s.state = StateUnknown
	s.episode++
	s.episodeStep = 0
	if s.deps.Policy != nil {
		s.deps.Policy.Reset()
	}
	if r, ok := s.deps.Reward.(interface{ Reset() }); ok {
		r.Reset()
	}

	if err := s.teardown(ctx); err != nil {
		return err
	}

	if s.deps.Seeder != nil {
		if err := s.deps.Seeder.Apply(s.cfg.Seed); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
	}

	h, err := s.deps.Launcher.Launch(ctx, s.cfg.Coordinates, s.cfg.Instance)
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	s.handle = h

	if err := s.waitReady(ctx); err != nil {
		s.abandon()
		return err
	}

	if !s.cfg.SkipStartup {
		if err := s.runStartup(ctx); err != nil {
			s.abandon()
			return fmt.Errorf("startup macro: %w", err)
		}
	}
	s.state = StateRunning
	logger.Infof("env[%d]: episode %d started", s.cfg.Instance, s.episode)
	return nil
}

// abandon cleans up a handle whose start failed.
func (s *Session) abandon() {
	if err := s.handle.Cleanup(); err != nil {
		logger.Warnf("env[%d]: cleanup after failed start: %v", s.cfg.Instance, err)
	}
	s.handle = nil
}

// teardown releases held input, since a new process cannot know what was
// held, and cleans up the current handle if any.
func (s *Session) teardown(ctx context.Context) error {
	if err := s.releaseInput(); err != nil {
		logger.Warnf("env[%d]: release input: %v", s.cfg.Instance, err)
	}
	if err := clock.Sleep(ctx, s.deps.Clock, releaseSettle); err != nil {
		return err
	}
	if s.handle == nil {
		return nil
	}
	if err := s.handle.Cleanup(); err != nil {
		logger.Warnf("env[%d]: cleanup: %v", s.cfg.Instance, err)
	}
	s.handle = nil
	return clock.Sleep(ctx, s.deps.Clock, teardownSettle)
}

func (s *Session) releaseInput() error {
	return errors.Join(
		s.deps.Input.SetHeldKeys(nil),
		s.deps.Input.SetHeldMouseButtons(nil),
	)
}

func (s *Session) waitReady(ctx context.Context) error {
	deadline := s.deps.Clock.Now().Add(ReadyTimeout)
	for !s.handle.Ready() {
		if err := s.handle.Tick(); err != nil {
			logger.Debugf("env[%d]: tick while starting: %v", s.cfg.Instance, err)
		}
		if err := clock.Sleep(ctx, s.deps.Clock, ReadyPollInterval); err != nil {
			return err
		}
		if s.deps.Clock.Now().After(deadline) {
			return fmt.Errorf("%w after %v", ErrInitTimeout, ReadyTimeout)
		}
	}
	return nil
}

func (s *Session) runStartup(ctx context.Context) error {
	if err := clock.Sleep(ctx, s.deps.Clock, startupDelay); err != nil {
		return err
	}
	if err := s.deps.Input.MoveMouse(s.cfg.Coordinates.X+10, s.cfg.Coordinates.Y+10); err != nil {
		return err
	}
	if err := s.deps.Input.KeySequence(ctx, s.cfg.MenuMacro); err != nil {
		return err
	}
	return clock.Sleep(ctx, s.deps.Clock, startupSettle)
}

func (s *Session) observe() Observation {
	var obs Observation
	frame, err := s.handle.Screen()
	if err != nil {
		logger.Warnf("env[%d]: capture first frame: %v", s.cfg.Instance, err)
	}
	obs.Frame = frame

	info, err := s.deps.Info.OnTick()
	if err != nil {
		logger.Debugf("env[%d]: first info poll: %v", s.cfg.Instance, err)
		info = s.deps.Info.CurrentInfo()
	}
	obs.Info = info.Clone()
	return obs
}

// Step applies an action, lets the process run for one step and returns the
// policy-processed result. ErrStepStall means the process did not advance and
// the caller should Reset.
func (s *Session) Step(ctx context.Context, action Action) (StepResult, error) {
	if s.state != StateRunning || s.handle == nil {
		return StepResult{}, ErrNotRunning
	}
	keys, buttons, err := s.cfg.InputSpace.Decode(action)
	if err != nil {
		return StepResult{}, err
	}

	ctx, span := tracer.Start(ctx, "env.Step", trace.WithAttributes(
		attribute.Int("env.instance", s.cfg.Instance),
		attribute.Int("env.episode", s.episode),
	))
	defer span.End()

	s.episodeStep++
	s.envStep++

	if err := s.applyInput(keys, buttons, action.Continuous); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply input")
		return StepResult{}, err
	}

	if err := s.handle.Tick(); err != nil {
		logger.Debugf("env[%d]: tick: %v", s.cfg.Instance, err)
	}
	baseline, _ := s.deps.Info.CurrentInfo().Tick()

	info, err := s.deps.Sync.Advance(ctx, baseline)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "advance")
		return StepResult{}, err
	}

	tick, _ := info.Tick()
	delta := tick - baseline
	if delta != 1 {
		logger.Debugf("env[%d]: tick advanced by %d in one step", s.cfg.Instance, delta)
	}

	frame, err := s.handle.Screen()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture")
		return StepResult{}, fmt.Errorf("capture frame: %w", err)
	}

	stepInfo := info.Clone()
	stepInfo[InfoTickDelta] = delta
	res := StepResult{
		Frame:       frame,
		Reward:      s.deps.Reward.Update(info),
		Terminated:  !info.IsAlive(),
		Truncated:   false,
		Info:        stepInfo,
		EpisodeStep: s.episodeStep,
		EnvStep:     s.envStep,
		TickDelta:   delta,
	}
	if s.deps.Policy != nil {
		res = s.deps.Policy.Apply(res)
	}

	span.SetAttributes(
		attribute.Int64("env.step", s.envStep),
		attribute.Int64("env.tick_delta", delta),
		attribute.Float64("env.reward", res.Reward),
		attribute.Bool("env.terminated", res.Terminated),
	)

	if s.deps.Recorder != nil {
		rec := StepRecord{
			Instance: s.cfg.Instance,
			Episode:  s.episode,
			Action:   action,
			Result:   res,
		}
		if err := s.deps.Recorder.Record(ctx, rec); err != nil {
			logger.Warnf("env[%d]: record step %d: %v", s.cfg.Instance, s.envStep, err)
		}
	}
	return res, nil
}

func (s *Session) applyInput(keys []input.Key, buttons []input.MouseButton, cursor [2]float64) error {
	if err := s.deps.Input.SetHeldKeys(keys); err != nil {
		return fmt.Errorf("set held keys: %w", err)
	}
	if err := s.deps.Input.SetHeldMouseButtons(buttons); err != nil {
		return fmt.Errorf("set held buttons: %w", err)
	}
	x, y := CursorPosition(cursor, s.cfg.Run.ScaleMouseCoords, s.cfg.Run.XRes, s.cfg.Run.YRes)
	if err := s.deps.Input.MoveMouse(s.cfg.Coordinates.X+x, s.cfg.Coordinates.Y+y); err != nil {
		return fmt.Errorf("move mouse: %w", err)
	}
	return nil
}

// Pause opens the in-game menu.
func (s *Session) Pause(ctx context.Context) error {
	return s.deps.Input.KeySequence(ctx, []input.Key{"Escape"})
}

// Resume closes the in-game menu.
func (s *Session) Resume(ctx context.Context) error {
	return s.deps.Input.KeySequence(ctx, []input.Key{"Escape"})
}

// Close releases held input and terminates the process.
func (s *Session) Close() error {
	s.state = StateUnknown
	err := s.releaseInput()
	if s.handle != nil {
		err = errors.Join(err, s.handle.Cleanup())
		s.handle = nil
	}
	return err
}
