package pipeline

import (
	"context"
	"fmt"

	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// StepError is a machine-readable step failure. Steps return these for
// expected failures instead of Go errors; Go errors are reserved for
// infrastructure faults per the runner's contract.
type StepError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *StepError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StepResult is the tagged outcome of one step. Either Success is true and
// the step has written its artifacts into the context, or Error is set and
// the step has left no artifact for its own output keys.
type StepResult struct {
	Success bool
	Error   *StepError
}

// Ok returns a successful StepResult.
func Ok() StepResult {
	return StepResult{Success: true}
}

// Fail returns a failed StepResult with the given code and message.
func Fail(code, message string) StepResult {
	return StepResult{Error: &StepError{Code: code, Message: message}}
}

// Failf returns a failed StepResult with a formatted message.
func Failf(code, format string, args ...any) StepResult {
	return StepResult{Error: &StepError{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// FailErr wraps an underlying error's text into the Details of a failed
// StepResult.
func FailErr(code, message string, err error) StepResult {
	res := StepResult{Error: &StepError{Code: code, Message: message}}
	if err != nil {
		res.Error.Details = err.Error()
	}
	return res
}

// StepFunc executes one pipeline step against the job's context.
type StepFunc func(ctx context.Context, pc *Context) StepResult

// Step binds a step function to its place in the status state machine.
// Status is set on the job before the step runs; EntryProgress is the
// monotonic progress value persisted with that transition.
type Step struct {
	Name          string
	Status        model.JobStatus
	EntryProgress int
	Run           StepFunc
}

// Step names, used for single-step retry requests and event stages.
const (
	StepIngestInputs   = "ingestInputs"
	StepGenerateScript = "generateScript"
	StepGenerateVoice  = "generateVoice"
	StepRunAlignment   = "runAlignment"
	StepPlanVisuals    = "planVisuals"
	StepGenerateImages = "generateImages"
	StepBuildTimeline  = "buildTimeline"
	StepRenderVideo    = "renderVideo"
	StepPackageAssets  = "packageAssets"
)

// CheckpointThresholdStep is the first step eligible for single-step retry.
// Steps before it produce artifacts too cheap to be worth checkpointing;
// retrying them restarts the whole run instead.
const CheckpointThresholdStep = StepRunAlignment

// stepOrder lists the nine steps in execution order.
var stepOrder = []string{
	StepIngestInputs,
	StepGenerateScript,
	StepGenerateVoice,
	StepRunAlignment,
	StepPlanVisuals,
	StepGenerateImages,
	StepBuildTimeline,
	StepRenderVideo,
	StepPackageAssets,
}

// StepIndex returns the position of a step name in the pipeline, or -1.
func StepIndex(name string) int {
	for i, n := range stepOrder {
		if n == name {
			return i
		}
	}
	return -1
}

// StepNames returns the nine step names in execution order.
func StepNames() []string {
	out := make([]string, len(stepOrder))
	copy(out, stepOrder)
	return out
}

// RetryableStep reports whether a step is at or after the checkpoint
// threshold and therefore eligible for single-step retry.
func RetryableStep(name string) bool {
	idx := StepIndex(name)
	return idx >= 0 && idx >= StepIndex(CheckpointThresholdStep)
}
