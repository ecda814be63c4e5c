package env

import (
	"context"
	"fmt"
	"time"

	"github.com/bhandras/gymharness/internal/clock"
	"github.com/bhandras/gymharness/pkg/logger"
)

// DefaultMaxTickPolls bounds how many run/pause cycles a step may take.
const DefaultMaxTickPolls = 20

// TickSync lets the controlled process run until its tick counter moves past
// baseline and returns the snapshot that showed the change.
//
// Implementations may poll or block; the controller only relies on the
// returned snapshot and on ErrStepStall when the process does not advance.
type TickSync interface {
	Advance(ctx context.Context, baseline int64) (Info, error)
}

// PollingSync advances the process by briefly raising its speed multiplier,
// sleeping, pausing it again, and polling the info source.
type PollingSync struct {
	Instance     int
	Speed        SpeedSetter
	Info         InfoSource
	Clock        clock.Clock
	RunRate      float32
	PauseRate    float32
	StepDuration time.Duration
	MaxPolls     int
}

var _ TickSync = (*PollingSync)(nil)

// Advance implements TickSync.
func (p *PollingSync) Advance(ctx context.Context, baseline int64) (Info, error) {
	maxPolls := p.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxTickPolls
	}
	c := p.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	runFor := time.Duration(float64(p.StepDuration) / float64(p.RunRate))

	for i := 0; i < maxPolls; i++ {
		if err := p.Speed.SetSpeed(p.RunRate, p.Instance); err != nil {
			return nil, fmt.Errorf("set run rate: %w", err)
		}
		sleepErr := clock.Sleep(ctx, c, runFor)
		if err := p.Speed.SetSpeed(p.PauseRate, p.Instance); err != nil {
			return nil, fmt.Errorf("set pause rate: %w", err)
		}
		if sleepErr != nil {
			return nil, sleepErr
		}

		info, err := p.Info.OnTick()
		if err != nil {
			logger.Debugf("env[%d]: info poll %d failed: %v", p.Instance, i, err)
			continue
		}
		if tick, ok := info.Tick(); ok && tick != baseline {
			return info, nil
		}
	}

	logger.Warnf("env[%d]: failed to step the environment after %d polls",
		p.Instance, maxPolls)
	return nil, ErrStepStall
}
