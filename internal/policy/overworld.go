package policy

import "github.com/bhandras/gymharness/internal/env"

// DefaultOverworldThreshold is the y coordinate above which the player has
// left the caves. World y grows downward.
const DefaultOverworldThreshold = -80

// OverworldTermination ends the episode once the player climbs out to the
// overworld.
type OverworldTermination struct {
	Threshold int
}

// NewOverworldTermination returns the policy with the default threshold.
func NewOverworldTermination() *OverworldTermination {
	return &OverworldTermination{Threshold: DefaultOverworldThreshold}
}

// Reset implements env.Policy. The policy is stateless.
func (o *OverworldTermination) Reset() {}

// Apply implements env.Policy.
func (o *OverworldTermination) Apply(step env.StepResult) env.StepResult {
	y, ok := step.Info.Y()
	if ok && int(y) < o.Threshold {
		step.Terminated = true
	}
	return step
}
