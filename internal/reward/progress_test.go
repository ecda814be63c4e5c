package reward

import (
	"testing"

	"github.com/bhandras/gymharness/internal/env"
	"github.com/stretchr/testify/require"
)

func TestProgressRewardsNewDepth(t *testing.T) {
	p := NewProgress()

	require.Zero(t, p.Update(env.Info{env.InfoY: 50.0}))
	require.InDelta(t, 1.5, p.Update(env.Info{env.InfoY: 200.0}), 1e-9)
	// Climbing back up and down again earns nothing until a new maximum.
	require.Zero(t, p.Update(env.Info{env.InfoY: 100.0}))
	require.Zero(t, p.Update(env.Info{env.InfoY: 200.0}))
	require.InDelta(t, 0.5, p.Update(env.Info{env.InfoY: 250.0}), 1e-9)
}

func TestProgressRewardsGold(t *testing.T) {
	p := NewProgress()

	require.Zero(t, p.Update(env.Info{InfoGold: int64(0)}))
	require.InDelta(t, 0.25, p.Update(env.Info{InfoGold: int64(25)}), 1e-9)
	require.Zero(t, p.Update(env.Info{InfoGold: int64(5)}))
	require.InDelta(t, 0.1, p.Update(env.Info{InfoGold: int64(15)}), 1e-9)
}

func TestProgressReset(t *testing.T) {
	p := NewProgress()
	p.Update(env.Info{env.InfoY: 0.0})
	p.Update(env.Info{env.InfoY: 500.0})

	p.Reset()
	require.Zero(t, p.Update(env.Info{env.InfoY: 10.0}))
	require.InDelta(t, 0.9, p.Update(env.Info{env.InfoY: 100.0}), 1e-9)
}
