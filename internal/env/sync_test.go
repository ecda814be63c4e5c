package env

import (
	"context"
	"testing"
	"time"

	"github.com/bhandras/gymharness/internal/clock/clocktest"
	"github.com/stretchr/testify/require"
)

func TestPollingSyncAdvances(t *testing.T) {
	clk := clocktest.NewFakeClock(time.Unix(0, 0))
	speed := &fakeSpeed{}
	info := &fakeInfo{tick: 10, step: 1, stallPolls: 2}

	sync := &PollingSync{
		Instance:     1,
		Speed:        speed,
		Info:         info,
		Clock:        clk,
		RunRate:      4,
		PauseRate:    0.02,
		StepDuration: 200 * time.Millisecond,
	}

	got, err := sync.Advance(context.Background(), 10)
	require.NoError(t, err)
	tick, ok := got.Tick()
	require.True(t, ok)
	require.Equal(t, int64(11), tick)

	require.Equal(t, []time.Duration{
		50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond,
	}, clk.Sleeps())
	require.Equal(t, []speedWrite{
		{4, 1}, {0.02, 1},
		{4, 1}, {0.02, 1},
		{4, 1}, {0.02, 1},
	}, speed.writes)
}

func TestPollingSyncStalls(t *testing.T) {
	clk := clocktest.NewFakeClock(time.Unix(0, 0))
	speed := &fakeSpeed{}

	sync := &PollingSync{
		Speed:        speed,
		Info:         &fakeInfo{tick: 3},
		Clock:        clk,
		RunRate:      2,
		PauseRate:    0,
		StepDuration: 100 * time.Millisecond,
		MaxPolls:     5,
	}

	_, err := sync.Advance(context.Background(), 3)
	require.ErrorIs(t, err, ErrStepStall)
	require.Len(t, clk.Sleeps(), 5)
	// The process is always left paused.
	require.Equal(t, float32(0), speed.writes[len(speed.writes)-1].multiplier)
}

func TestPollingSyncCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	speed := &fakeSpeed{}
	sync := &PollingSync{
		Speed:        speed,
		Info:         &fakeInfo{step: 1},
		Clock:        clocktest.NewFakeClock(time.Unix(0, 0)),
		RunRate:      1,
		StepDuration: time.Millisecond,
	}

	_, err := sync.Advance(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, float32(0), speed.writes[len(speed.writes)-1].multiplier)
}
