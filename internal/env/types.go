// Package env implements the session controller that turns a running game
// process into a reinforcement-learning environment.
//
// A Session owns one process handle and one input channel. Reset relaunches
// the process under a watchdog with bounded retries; Step applies an action,
// lets the process run for one paced step through the time-control channel,
// and passes the observed result through the episode policy chain.
//
// A Session is driven by a single goroutine. Concurrent environments use one
// Session each and share only the input router and the time-control directory.
package env

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/bhandras/gymharness/internal/input"
)

// State is the controller's view of the session lifecycle.
type State int

const (
	// StateUnknown means no process is known to be ready.
	StateUnknown State = iota
	// StateRunning means the last reset succeeded.
	StateRunning
	// StateGameOver is never set by the controller; callers derive it from
	// a terminated step.
	StateGameOver
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateRunning:
		return "RUNNING"
	case StateGameOver:
		return "GAME_OVER"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Coordinates is the top-left corner of an instance's window on the shared
// display.
type Coordinates struct {
	X int
	Y int
}

// Frame is a rendered frame as row-major H×W×3 bytes.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return len(f.Pix) == 0
}

// Info is a key-value snapshot reported by the controlled process.
type Info map[string]any

const (
	// InfoTick is the monotonic tick counter key.
	InfoTick = "tick"
	// InfoIsAlive is the player aliveness key.
	InfoIsAlive = "is_alive"
	// InfoY is the vertical world coordinate key.
	InfoY = "y"
	// InfoTickDelta is added by the controller to every step's info.
	InfoTickDelta = "tick_delta"
)

// Clone returns a shallow copy of the snapshot.
func (i Info) Clone() Info {
	if i == nil {
		return Info{}
	}
	return maps.Clone(i)
}

// Tick returns the tick counter, if present and numeric.
func (i Info) Tick() (int64, bool) {
	return i.Int(InfoTick)
}

// IsAlive reports the player's aliveness. A snapshot without the key is
// treated as alive so a sparse reporter does not end every episode.
func (i Info) IsAlive() bool {
	v, ok := i[InfoIsAlive]
	if !ok {
		return true
	}
	alive, ok := v.(bool)
	if !ok {
		return true
	}
	return alive
}

// Y returns the vertical world coordinate, if present and numeric.
func (i Info) Y() (float64, bool) {
	return i.Float(InfoY)
}

// Int returns a numeric field as int64.
func (i Info) Int(key string) (int64, bool) {
	f, ok := i.Float(key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Float returns a numeric field as float64.
func (i Info) Float(key string) (float64, bool) {
	switch v := i[key].(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// StepResult is an immutable snapshot of one environment step.
//
// Policies receive a copy and return a new value; Info is cloned by the
// controller before the chain runs, and policies that need to change it must
// clone again.
type StepResult struct {
	Frame       Frame
	Reward      float64
	Terminated  bool
	Truncated   bool
	Info        Info
	EpisodeStep int
	EnvStep     int64
	TickDelta   int64
}

// Done reports whether the episode ended on this step.
func (r StepResult) Done() bool {
	return r.Terminated || r.Truncated
}

// Observation is what Reset returns.
type Observation struct {
	Frame Frame
	Info  Info
}

// RunInfo reports the session's counters.
type RunInfo struct {
	Episode     int
	EpisodeStep int
	EnvStep     int64
}

// Handle is a launched game process.
type Handle interface {
	// Ready reports whether the process finished starting.
	Ready() bool
	// Tick lets the handle refresh its view of the process (window lookup,
	// liveness).
	Tick() error
	// Screen returns the current rendered frame.
	Screen() (Frame, error)
	// Cleanup terminates the process and releases its resources.
	Cleanup() error
}

// Launcher creates process handles.
type Launcher interface {
	Launch(ctx context.Context, coords Coordinates, instance int) (Handle, error)
}

// InfoSource reports process state.
type InfoSource interface {
	// OnTick reads a fresh snapshot from the process.
	OnTick() (Info, error)
	// CurrentInfo returns the last snapshot without reading.
	CurrentInfo() Info
}

// RewardFunc computes a reward from a snapshot. Implementations that also
// implement Reset() are reset at the start of every episode.
type RewardFunc interface {
	Update(info Info) float64
}

// Seeder reconfigures the world seed before a launch.
type Seeder interface {
	Apply(seed uint32) error
}

// SpeedSetter writes the time-control multiplier for an instance.
type SpeedSetter interface {
	SetSpeed(multiplier float32, instance int) error
}

// InputChannel is one instance's input device.
type InputChannel interface {
	SetHeldKeys(keys []input.Key) error
	SetHeldMouseButtons(buttons []input.MouseButton) error
	MoveMouse(x, y int) error
	KeySequence(ctx context.Context, keys []input.Key) error
}

// Policy post-processes step results. Reset runs at every episode start and
// Apply on every step, in chain order.
type Policy interface {
	Reset()
	Apply(step StepResult) StepResult
}

// StepRecord is what a Recorder persists for one step.
type StepRecord struct {
	Instance int
	Episode  int
	Action   Action
	Result   StepResult
}

// Recorder persists step records. Failures are logged, not returned to the
// stepping caller.
type Recorder interface {
	Record(ctx context.Context, rec StepRecord) error
}
