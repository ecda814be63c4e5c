package policy

import (
	"github.com/bhandras/gymharness/internal/env"
	"github.com/bhandras/gymharness/pkg/logger"
)

const (
	// DefaultSparsePenalty is subtracted from the reward on termination.
	DefaultSparsePenalty = 10
	// DefaultSparseHistory is the largest window, five minutes of steps at
	// four steps per second.
	DefaultSparseHistory = 5 * 60 * 4
)

// DefaultSparseWindow grows the window from 90 seconds of steps to five
// minutes of steps over the first million episode steps.
func DefaultSparseWindow() LinearInterpolator {
	return LinearInterpolator{
		X0: 0, X1: 1_000_000,
		Y0: 1.5 * 60 * 4, Y1: DefaultSparseHistory,
	}
}

// SparseRewardTermination ends the episode when no reward was earned within a
// window of recent steps. The window size depends on the episode step.
//
// The policy fires at most once per episode: the step where the window first
// holds only zero rewards gets the penalty and the termination, and later
// steps pass through unchanged until Reset.
type SparseRewardTermination struct {
	Penalty float64
	Window  LinearInterpolator
	MaxSize int
	// Log reports terminations at info level.
	Log bool

	history *GrowingFIFO
	fired   bool
}

// NewSparseRewardTermination returns the policy with the default penalty and
// window.
func NewSparseRewardTermination() *SparseRewardTermination {
	s := &SparseRewardTermination{
		Penalty: DefaultSparsePenalty,
		Window:  DefaultSparseWindow(),
		MaxSize: DefaultSparseHistory,
		Log:     true,
	}
	s.Reset()
	return s
}

// Reset implements env.Policy. The history is seeded with one nonzero entry
// so a fresh episode is not terminated before the window fills.
func (s *SparseRewardTermination) Reset() {
	s.history = NewGrowingFIFO(s.MaxSize)
	s.history.Push(1, 1)
	s.fired = false
}

// Apply implements env.Policy.
func (s *SparseRewardTermination) Apply(step env.StepResult) env.StepResult {
	if s.history == nil {
		s.Reset()
	}
	s.history.Push(step.Reward, int(s.Window.Value(float64(step.EpisodeStep))))
	if s.fired || s.history.CountNonZero() > 0 {
		return step
	}

	s.fired = true
	step.Reward -= s.Penalty
	step.Terminated = true
	if s.Log {
		logger.Infof("policy: terminated episode due to sparse reward at step %d",
			step.EpisodeStep)
	}
	return step
}
