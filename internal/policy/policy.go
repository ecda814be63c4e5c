// Package policy holds episode policies: stateful post-processors that see
// every step result and may end the episode early or lower the reward.
//
// Policies only strengthen a result. A policy never clears a termination set
// by the process or by an earlier policy, and never raises the reward.
package policy

import (
	"github.com/bhandras/gymharness/internal/env"
)

// Chain applies policies in order, each seeing the previous one's output.
type Chain []env.Policy

var _ env.Policy = Chain(nil)

// Reset resets every policy in order.
func (c Chain) Reset() {
	for _, p := range c {
		p.Reset()
	}
}

// Apply threads step through every policy.
func (c Chain) Apply(step env.StepResult) env.StepResult {
	for _, p := range c {
		step = p.Apply(step)
	}
	return step
}

// Default returns the standard chain: overworld termination followed by
// sparse-reward termination.
func Default() Chain {
	return Chain{
		NewOverworldTermination(),
		NewSparseRewardTermination(),
	}
}
