// Package reward turns game state snapshots into scalar rewards.
package reward

import "github.com/bhandras/gymharness/internal/env"

// InfoGold is the snapshot key for the player's gold.
const InfoGold = "gold"

// Progress rewards reaching new depths and picking up gold. World y grows
// downward, so depth is the largest y seen this episode.
type Progress struct {
	// DepthUnit is the descent in world units worth a reward of 1.
	DepthUnit float64
	// GoldScale is the reward per unit of gold gained.
	GoldScale float64

	started  bool
	maxDepth float64
	gold     float64
}

var _ env.RewardFunc = (*Progress)(nil)

// NewProgress returns a Progress reward with default scales.
func NewProgress() *Progress {
	return &Progress{DepthUnit: 100, GoldScale: 0.01}
}

// Reset forgets the previous episode.
func (p *Progress) Reset() {
	p.started = false
	p.maxDepth = 0
	p.gold = 0
}

// Update implements env.RewardFunc. The first snapshot of an episode sets the
// baseline and earns nothing.
func (p *Progress) Update(info env.Info) float64 {
	y, hasY := info.Y()
	gold, hasGold := info.Float(InfoGold)

	if !p.started {
		p.started = true
		p.maxDepth = y
		p.gold = gold
		return 0
	}

	var r float64
	if hasY && y > p.maxDepth {
		if p.DepthUnit > 0 {
			r += (y - p.maxDepth) / p.DepthUnit
		}
		p.maxDepth = y
	}
	if hasGold {
		if gold > p.gold {
			r += (gold - p.gold) * p.GoldScale
		}
		// Spending gold is not penalized.
		p.gold = gold
	}
	return r
}
