// Package metrics emits standardized pipeline and ledger metrics.
package metrics

import (
	"time"

	obserrors "github.com/canvascast/canvascast-go/internal/observability/errors"
	"github.com/canvascast/canvascast-go/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// StepMetric captures details about one pipeline step execution.
type StepMetric struct {
	Step     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitStep emits counter and timing metrics for a pipeline step.
func EmitStep(sink statsd.Sink, in StepMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"step":   in.Step,
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("pipeline.step", 1, tags)

	if in.Duration > 0 {
		sink.Timing("pipeline.step_duration", in.Duration, CloneTags(tags))
	}
}

// JobMetric captures a job lifecycle transition for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics. Transition is
// the coarse outcome: claimed, ready, failed, dead_lettered, requeued.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// EmitQueueDepth records queue gauge metrics from job stats.
func EmitQueueDepth(sink statsd.Sink, queued, active, deadLetter int) {
	if sink == nil {
		return
	}
	sink.Gauge("job.queued", float64(queued), nil)
	sink.Gauge("job.active", float64(active), nil)
	sink.Gauge("job.dead_letter", float64(deadLetter), nil)
}

// CloneTags creates a shallow copy of a tag map, filtering nothing.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
