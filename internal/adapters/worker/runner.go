// Package worker runs the pipeline worker pool: each worker claims one
// queued job at a time and drives it through the full pipeline before
// polling again.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/canvascast/canvascast-go/config"
	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/observability/statsd"
	"github.com/canvascast/canvascast-go/internal/pipeline"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Jobs     core.JobStore       // Required
	Pipeline *pipeline.Runner    // Required
	Config   config.WorkerConfig // Required

	Logger  *slog.Logger // Optional
	Metrics statsd.Sink  // Optional
}

// Runner drives N concurrent pipeline workers against the job queue.
type Runner struct {
	jobs     core.JobStore
	pipeline *pipeline.Runner
	config   config.WorkerConfig
	identity string

	logger  *slog.Logger
	metrics statsd.Sink
}

// NewRunner creates a new worker runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline runner is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		jobs:     opts.Jobs,
		pipeline: opts.Pipeline,
		config:   cfg,
		identity: workerIdentity(),
		logger:   logger.With("component", "worker_runner"),
		metrics:  opts.Metrics,
	}, nil
}

// Identity returns the base worker identity for this process.
func (r *Runner) Identity() string {
	return r.identity
}

// Run starts the worker goroutines and processes jobs until the context is
// cancelled. The first non-transient error cancels all workers.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting pipeline workers",
		"workers", r.config.Count,
		"poll_interval", r.config.PollInterval,
		"per_user_limit", r.config.PerUserLimit,
		"identity", r.identity,
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := range r.config.Count {
		workerID := fmt.Sprintf("%s/w%d", r.identity, i)
		g.Go(func() error {
			return r.workerLoop(ctx, workerID)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// workerLoop claims and runs jobs until the context is cancelled.
func (r *Runner) workerLoop(ctx context.Context, workerID string) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ClaimNext(ctx, core.ClaimNextParams{
			WorkerID:     workerID,
			PerUserLimit: r.config.PerUserLimit,
		})
		switch {
		case err == nil:
			r.processJob(ctx, workerID, job)
		case errors.Is(err, model.ErrNoClaimableJobs):
			if !r.sleep(ctx) {
				return ctx.Err()
			}
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		default:
			return fmt.Errorf("claim next job: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) processJob(ctx context.Context, workerID string, job *model.Job) {
	start := time.Now()
	r.logger.InfoContext(ctx, "job claimed",
		"worker", workerID,
		"job_id", job.ID,
		"user_id", job.UserID,
		"retry_count", job.RetryCount,
	)
	if r.metrics != nil {
		r.metrics.Count("worker.claims", 1, nil)
	}

	if err := r.pipeline.Run(ctx, job); err != nil {
		// The runner has already parked the job; this is operator signal.
		r.logger.ErrorContext(ctx, "pipeline run returned infrastructure error",
			"worker", workerID,
			"job_id", job.ID,
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.Count("worker.run_errors", 1, nil)
		}
		return
	}

	r.logger.InfoContext(ctx, "job run finished",
		"worker", workerID,
		"job_id", job.ID,
		"elapsed", time.Since(start),
	)
}

// sleep waits one poll interval; returns false when the context ended first.
func (r *Runner) sleep(ctx context.Context) bool {
	select {
	case <-time.After(r.config.PollInterval):
		return true
	case <-ctx.Done():
		return false
	}
}

// workerIdentity builds the process-level claim identity recorded on
// claimed rows, so stale claims can be traced back to a worker process.
func workerIdentity() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString()[:8])
}
