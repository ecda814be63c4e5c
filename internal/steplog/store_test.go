package steplog

import (
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/bhandras/gymharness/internal/env"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, every int) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Dir:                  t.TempDir(),
		App:                  "Noita",
		PixelsEveryNEpisodes: every,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(episode int, envStep int64) env.StepRecord {
	return env.StepRecord{
		Instance: 1,
		Episode:  episode,
		Action: env.Action{
			Discrete:   []int{1, 0, 2},
			Continuous: [2]float64{0.5, -0.25},
		},
		Result: env.StepResult{
			Frame: env.Frame{
				Width: 2, Height: 2,
				Pix: []uint8{255, 0, 0, 0, 255, 0, 0, 0, 255, 255, 255, 255},
			},
			Reward:      1.5,
			Terminated:  envStep%2 == 0,
			Info:        env.Info{env.InfoTick: int64(envStep), "biome": "mines"},
			EpisodeStep: int(envStep),
			EnvStep:     envStep,
			TickDelta:   1,
		},
	}
}

func TestRecordAndReadBack(t *testing.T) {
	s := openStore(t, 1)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, record(1, 1)))
	require.NoError(t, s.Record(ctx, record(1, 2)))

	steps, err := s.Steps(ctx, 1)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	got := steps[1]
	require.Equal(t, int64(2), got.EnvStep)
	require.Equal(t, 1, got.Episode)
	require.Equal(t, 1.5, got.Reward)
	require.True(t, got.Terminated)
	require.False(t, got.Truncated)
	require.Equal(t, int64(1), got.TickDelta)
	require.Equal(t, []int{1, 0, 2}, got.Action.Discrete)
	require.Equal(t, [2]float64{0.5, -0.25}, got.Action.Continuous)

	tick, ok := got.Info.Tick()
	require.True(t, ok)
	require.Equal(t, int64(2), tick)
	require.Equal(t, "mines", got.Info["biome"])

	require.Equal(t, filepath.Join(s.FrameDir(1, 2), "2_pixels.jpg"), got.FramePath)
	f, err := os.Open(got.FramePath)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Width)
}

func TestFramesEveryNthEpisode(t *testing.T) {
	s := openStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, record(1, 1)))
	require.NoError(t, s.Record(ctx, record(2, 2)))

	steps, err := s.Steps(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, steps[0].FramePath)
	require.NotEmpty(t, steps[1].FramePath)
}

func TestFramesDisabled(t *testing.T) {
	s := openStore(t, 0)
	require.NoError(t, s.Record(context.Background(), record(1, 1)))

	steps, err := s.Steps(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, steps[0].FramePath)
}

func TestFrameChunks(t *testing.T) {
	s := openStore(t, 1)
	require.Equal(t, "step_chunk_0", filepath.Base(s.FrameDir(0, 9999)))
	require.Equal(t, "step_chunk_1", filepath.Base(s.FrameDir(0, 10000)))
}

func TestDuplicateStepRejected(t *testing.T) {
	s := openStore(t, 0)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, record(1, 1)))
	require.Error(t, s.Record(ctx, record(1, 1)))
}

func TestReopenKeepsRuns(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(ctx, Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, first.Record(ctx, record(1, 1)))
	require.NoError(t, first.Close())

	second, err := Open(ctx, Options{Dir: dir})
	require.NoError(t, err)
	defer second.Close()
	require.NotEqual(t, first.RunID(), second.RunID())

	steps, err := second.Steps(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, steps)
}

func TestToImageRejectsShortFrame(t *testing.T) {
	_, err := toImage(env.Frame{Width: 2, Height: 2, Pix: make([]uint8, 3)})
	require.Error(t, err)
}
