// Package pricing estimates and finalizes job credit costs. The exact
// per-minute rate is a business input; the pipeline only depends on the
// invariant that the final cost is a non-negative integer no greater than
// the reservation.
package pricing

import (
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// DefaultCreditsPerMinute is the fallback rate when none is configured.
// One credit buys roughly one minute of generated video.
const DefaultCreditsPerMinute = 1

// FinalCostFunc computes the credits actually consumed by a finished job
// from the project parameters and the narration duration that was produced.
// Implementations must return a value in [0, reserved]; the runner clamps
// defensively regardless.
type FinalCostFunc func(project *model.Project, narrationDurationMs int64) int64

// Estimator prices jobs at acceptance time.
type Estimator struct {
	creditsPerMinute int64
}

// NewEstimator constructs an Estimator with the given per-minute rate.
// Non-positive rates fall back to the default.
func NewEstimator(creditsPerMinute int64) *Estimator {
	if creditsPerMinute <= 0 {
		creditsPerMinute = DefaultCreditsPerMinute
	}
	return &Estimator{creditsPerMinute: creditsPerMinute}
}

// Reserve returns the credits to hold for a project: the target duration
// priced at the configured rate, minimum one credit.
func (e *Estimator) Reserve(project *model.Project) int64 {
	minutes := int64(project.DurationMinutes)
	if minutes < 1 {
		minutes = 1
	}
	return minutes * e.creditsPerMinute
}

// FinalCost implements FinalCostFunc. It charges for the narration actually
// produced, rounded up to whole minutes, never exceeding the estimate for
// the project's target duration.
func (e *Estimator) FinalCost(project *model.Project, narrationDurationMs int64) int64 {
	reserved := e.Reserve(project)
	if narrationDurationMs <= 0 {
		return reserved
	}

	const msPerMinute = 60_000
	minutes := (narrationDurationMs + msPerMinute - 1) / msPerMinute
	if minutes < 1 {
		minutes = 1
	}

	cost := minutes * e.creditsPerMinute
	if cost > reserved {
		return reserved
	}
	return cost
}
