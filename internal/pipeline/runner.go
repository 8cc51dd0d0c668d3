package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/domain/refund"
	obserrors "github.com/canvascast/canvascast-go/internal/observability/errors"
	"github.com/canvascast/canvascast-go/internal/observability/metrics"
	"github.com/canvascast/canvascast-go/internal/observability/notify"
	"github.com/canvascast/canvascast-go/internal/observability/statsd"
)

// DefaultDeadLetterThreshold is the retry count at which a failed job stops
// being automatically retryable and moves to the dead letter queue.
const DefaultDeadLetterThreshold = 3

// ShouldMoveToDeadLetterQueue reports whether a job with the given retry
// count belongs in the dead letter queue.
func ShouldMoveToDeadLetterQueue(retryCount int) bool {
	return retryCount >= DefaultDeadLetterThreshold
}

// FinalCostFunc computes the credits actually consumed by a finished run.
// The pricing formula is a collaborator concern; the runner only clamps the
// result into [0, reserved].
type FinalCostFunc func(project *model.Project, pc *Context) int64

// RunnerOptions groups the dependencies for NewRunner.
type RunnerOptions struct {
	Jobs     core.JobStore
	Credits  core.CreditStore
	Projects core.ProjectStore
	Events   core.JobEventStore

	Steps     []Step
	FinalCost FinalCostFunc

	// DeadLetterThreshold overrides DefaultDeadLetterThreshold when > 0.
	DeadLetterThreshold int

	Metrics  statsd.Sink
	Notifier notify.Sink
	Logger   *slog.Logger
}

// Runner executes the pipeline for one claimed job at a time, owning every
// job status transition after the claim.
type Runner struct {
	jobs     core.JobStore
	credits  core.CreditStore
	projects core.ProjectStore
	events   core.JobEventStore

	steps        []Step
	finalCost    FinalCostFunc
	dlqThreshold int

	metrics  statsd.Sink
	notifier notify.Sink
	logger   *slog.Logger
}

// NewRunner validates options and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Credits == nil {
		return nil, errors.New("credit store is required")
	}
	if opts.Projects == nil {
		return nil, errors.New("project store is required")
	}
	if opts.Events == nil {
		return nil, errors.New("event store is required")
	}
	if len(opts.Steps) == 0 {
		return nil, errors.New("at least one step is required")
	}
	if opts.FinalCost == nil {
		return nil, errors.New("final cost function is required")
	}

	threshold := opts.DeadLetterThreshold
	if threshold <= 0 {
		threshold = DefaultDeadLetterThreshold
	}

	logger := opts.Logger
	if logger != nil {
		logger = logger.With("component", "pipeline_runner")
	}

	return &Runner{
		jobs:         opts.Jobs,
		credits:      opts.Credits,
		projects:     opts.Projects,
		events:       opts.Events,
		steps:        opts.Steps,
		finalCost:    opts.FinalCost,
		dlqThreshold: threshold,
		metrics:      opts.Metrics,
		notifier:     opts.Notifier,
		logger:       logger,
	}, nil
}

// MustNewRunner is NewRunner that panics on error, for wiring code.
func MustNewRunner(opts RunnerOptions) *Runner {
	r, err := NewRunner(opts)
	if err != nil {
		panic(err)
	}
	return r
}

// Run executes the pipeline for a freshly claimed job through to a terminal
// state. Business failures are absorbed into the job row; the returned error
// is non-nil only for infrastructure faults the worker loop should log.
func (r *Runner) Run(ctx context.Context, job *model.Job) error {
	started := time.Now()

	project, err := r.projects.GetByID(ctx, job.ProjectID)
	if err != nil {
		// Equivalent to the first step failing: no steps run, full release.
		stepErr := &StepError{Code: "project_unavailable", Message: "project lookup failed", Details: err.Error()}
		return r.handleFailure(ctx, failureParams{
			Job:      job,
			StepName: r.steps[0].Name,
			Status:   r.steps[0].Status,
			Progress: r.steps[0].EntryProgress,
			Err:      stepErr,
		})
	}

	pc := NewContext(job, project)

	startIdx := 0
	if job.ResumeStep != nil {
		startIdx = r.resumeIndex(ctx, job, pc)
	}

	for i := startIdx; i < len(r.steps); i++ {
		step := r.steps[i]

		if err := r.transition(ctx, job, step); err != nil {
			return r.failInfra(ctx, job, step, err)
		}

		stepStarted := time.Now()
		result := step.Run(ctx, pc)
		r.emitStepMetric(step, result, time.Since(stepStarted))

		if !result.Success {
			if r.logger != nil {
				r.logger.WarnContext(ctx, "pipeline step failed",
					"job_id", job.ID,
					"step", step.Name,
					"error_code", result.Error.Code,
					"error", result.Error.Message,
				)
			}
			return r.handleFailure(ctx, failureParams{
				Job:      job,
				StepName: step.Name,
				Status:   step.Status,
				Progress: max(job.Progress, step.EntryProgress),
				Err:      result.Error,
			})
		}

		r.saveCheckpoint(ctx, job, pc, step)
	}

	return r.finish(ctx, job, project, pc, started)
}

// resumeIndex restores the checkpointed artifacts and returns the index of
// the step the run should re-enter at. An unknown or pre-threshold resume
// step falls back to a full run from the beginning.
func (r *Runner) resumeIndex(ctx context.Context, job *model.Job, pc *Context) int {
	stepName := *job.ResumeStep
	idx := StepIndex(stepName)
	if idx < 0 || !RetryableStep(stepName) {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "ignoring invalid resume step; restarting pipeline",
				"job_id", job.ID,
				"resume_step", stepName,
			)
		}
		return 0
	}

	if err := pc.Restore(job.Checkpoint); err != nil {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "checkpoint restore failed; restarting pipeline",
				"job_id", job.ID,
				"error", err,
			)
		}
		pc.ClearArtifacts()
		return 0
	}
	return idx
}

// transition persists the step's status before the step runs and appends the
// transition event, so polling clients observe progress mid-run.
func (r *Runner) transition(ctx context.Context, job *model.Job, step Step) error {
	if err := r.jobs.AdvanceStatus(ctx, core.AdvanceStatusParams{
		JobID:    job.ID,
		Status:   step.Status,
		Progress: step.EntryProgress,
	}); err != nil {
		return fmt.Errorf("advance status to %s: %w", step.Status, err)
	}
	job.Status = step.Status
	if step.EntryProgress > job.Progress {
		job.Progress = step.EntryProgress
	}

	r.appendEvent(ctx, job.ID, step.Name, "step started", nil)
	return nil
}

func (r *Runner) saveCheckpoint(ctx context.Context, job *model.Job, pc *Context, step Step) {
	snapshot, err := pc.Snapshot()
	if err == nil {
		err = r.jobs.SaveCheckpoint(ctx, job.ID, snapshot)
	}
	if err != nil && r.logger != nil {
		// Losing a checkpoint only costs a future retry extra work.
		r.logger.WarnContext(ctx, "checkpoint save failed",
			"job_id", job.ID,
			"step", step.Name,
			"error", err,
		)
	}
	if err == nil {
		job.Checkpoint = snapshot
	}
}

// finish finalizes credits and marks the job ready.
func (r *Runner) finish(ctx context.Context, job *model.Job, project *model.Project, pc *Context, started time.Time) error {
	reserved := job.CostCreditsReserved
	finalCost := r.finalCost(project, pc)
	if finalCost < 0 {
		finalCost = 0
	}
	if finalCost > reserved {
		finalCost = reserved
	}

	if err := r.credits.Finalize(ctx, core.FinalizeCreditsParams{
		UserID:    job.UserID,
		JobID:     job.ID,
		FinalCost: finalCost,
	}); err != nil {
		lastStep := r.steps[len(r.steps)-1]
		return r.failInfra(ctx, job, lastStep, fmt.Errorf("finalize credits: %w", err))
	}

	if path := pc.StringArtifact(ArtifactTimelinePath); path != "" {
		if err := r.projects.SetTimelinePath(ctx, project.ID, path); err != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "timeline path write-back failed",
				"job_id", job.ID,
				"project_id", project.ID,
				"error", err,
			)
		}
	}

	if err := r.jobs.MarkReady(ctx, core.MarkReadyParams{JobID: job.ID, FinalCost: finalCost}); err != nil {
		return fmt.Errorf("mark job ready: %w", err)
	}

	meta, _ := json.Marshal(map[string]any{"final_cost": finalCost})
	r.appendEvent(ctx, job.ID, "ready", "pipeline completed", meta)

	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: "ready",
		Result:     metrics.ResultSuccess,
		Duration:   time.Since(started),
	})

	if r.logger != nil {
		r.logger.InfoContext(ctx, "job ready",
			"job_id", job.ID,
			"final_cost", finalCost,
			"reserved", reserved,
		)
	}
	return nil
}

// failureParams groups parameters for handleFailure.
type failureParams struct {
	Job      *model.Job
	StepName string
	Status   model.JobStatus
	Progress int
	Err      *StepError
}

// handleFailure applies the failure protocol: mark failed, settle credits
// per the refund policy, and move to the dead letter queue when retries are
// exhausted.
func (r *Runner) handleFailure(ctx context.Context, p failureParams) error {
	retryCount, err := r.jobs.MarkFailed(ctx, core.MarkFailedParams{
		JobID:        p.Job.ID,
		ErrorCode:    p.Err.Code,
		ErrorMessage: p.Err.Message,
	})
	if err != nil {
		// The job row is in an unknown state; release defensively so no
		// reservation can leak, then surface the infra fault.
		r.releaseDefensively(ctx, p.Job.ID)
		return fmt.Errorf("mark job failed: %w", err)
	}

	if err := r.settleCredits(ctx, p); err != nil {
		return err
	}

	meta, _ := json.Marshal(map[string]any{
		"error_code":  p.Err.Code,
		"retry_count": retryCount,
	})
	r.appendEvent(ctx, p.Job.ID, p.StepName, "step failed: "+p.Err.Message, meta)

	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: "failed",
		Result:     metrics.ResultError,
		Err:        p.Err,
	})

	if retryCount >= r.dlqThreshold {
		return r.moveToDeadLetter(ctx, p, retryCount)
	}
	return nil
}

// settleCredits releases or charges the reservation according to the refund
// policy evaluated at the failure point.
func (r *Runner) settleCredits(ctx context.Context, p failureParams) error {
	reserved := p.Job.CostCreditsReserved
	refundAmount := refund.Amount(reserved, p.Status, p.Progress)

	if refundAmount > 0 {
		if err := r.credits.Release(ctx, p.Job.ID); err != nil {
			return fmt.Errorf("release credits: %w", err)
		}
		return nil
	}

	// Past the refund cutoff the reservation is fully consumed.
	if err := r.credits.Finalize(ctx, core.FinalizeCreditsParams{
		UserID:    p.Job.UserID,
		JobID:     p.Job.ID,
		FinalCost: reserved,
	}); err != nil {
		return fmt.Errorf("finalize credits on failure: %w", err)
	}
	return nil
}

// moveToDeadLetter performs the DLQ transition. Failures here propagate
// loudly; an operator has to know when a job could not be parked.
func (r *Runner) moveToDeadLetter(ctx context.Context, p failureParams, retryCount int) error {
	reason := fmt.Sprintf("retries exhausted at step %s: %s", p.StepName, p.Err.Message)
	if err := r.jobs.MoveToDeadLetter(ctx, core.DeadLetterParams{
		JobID:  p.Job.ID,
		Reason: reason,
	}); err != nil {
		return fmt.Errorf("move job %s to dead letter queue: %w", p.Job.ID, err)
	}

	r.appendEvent(ctx, p.Job.ID, "dead_letter", reason, nil)

	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: "dead_lettered",
		Result:     metrics.ResultError,
		Err:        p.Err,
	})

	if r.notifier != nil {
		payload := notify.DeadLetterPayload{
			JobID:      p.Job.ID,
			ProjectID:  p.Job.ProjectID,
			UserID:     p.Job.UserID,
			Step:       p.StepName,
			RetryCount: retryCount,
			Error:      p.Err.Message,
			ErrorClass: obserrors.Classify(p.Err),
			Severity:   notify.SeverityCritical,
			OccurredAt: time.Now().UTC(),
		}
		if err := r.notifier.SendDeadLetter(ctx, payload); err != nil && r.logger != nil {
			r.logger.ErrorContext(ctx, "dead letter notification failed",
				"job_id", p.Job.ID,
				"error", err,
			)
		}
	}

	if r.logger != nil {
		r.logger.ErrorContext(ctx, "job moved to dead letter queue",
			"job_id", p.Job.ID,
			"retry_count", retryCount,
			"reason", reason,
		)
	}
	return nil
}

// failInfra converts an infrastructure fault mid-run into the failed state
// with a defensive release, per the contract that a job is never left
// half-reserved.
func (r *Runner) failInfra(ctx context.Context, job *model.Job, step Step, cause error) error {
	if r.logger != nil {
		r.logger.ErrorContext(ctx, "pipeline infrastructure fault",
			"job_id", job.ID,
			"step", step.Name,
			"error", cause,
		)
	}
	stepErr := &StepError{Code: "infrastructure_error", Message: "internal pipeline fault", Details: cause.Error()}
	if _, err := r.jobs.MarkFailed(ctx, core.MarkFailedParams{
		JobID:        job.ID,
		ErrorCode:    stepErr.Code,
		ErrorMessage: stepErr.Message,
	}); err != nil {
		r.releaseDefensively(ctx, job.ID)
		return errors.Join(cause, fmt.Errorf("mark job failed: %w", err))
	}
	r.releaseDefensively(ctx, job.ID)
	r.appendEvent(ctx, job.ID, step.Name, "infrastructure fault: "+cause.Error(), nil)
	return cause
}

// releaseDefensively drops any reservation for the job, relying on Release
// being idempotent.
func (r *Runner) releaseDefensively(ctx context.Context, jobID string) {
	if err := r.credits.Release(ctx, jobID); err != nil && r.logger != nil {
		r.logger.ErrorContext(ctx, "defensive credit release failed",
			"job_id", jobID,
			"error", err,
		)
	}
}

func (r *Runner) appendEvent(ctx context.Context, jobID, stage, message string, metadata json.RawMessage) {
	if err := r.events.Append(ctx, core.AppendJobEventParams{
		JobID:    jobID,
		Stage:    stage,
		Message:  message,
		Metadata: metadata,
	}); err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "job event append failed",
			"job_id", jobID,
			"stage", stage,
			"error", err,
		)
	}
}

func (r *Runner) emitStepMetric(step Step, result StepResult, duration time.Duration) {
	in := metrics.StepMetric{
		Step:     step.Name,
		Result:   metrics.ResultSuccess,
		Duration: duration,
	}
	if !result.Success {
		in.Result = metrics.ResultError
		in.Err = result.Error
	}
	metrics.EmitStep(r.metrics, in)
}
