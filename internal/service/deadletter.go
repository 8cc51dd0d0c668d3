package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/observability/statsd"
	"github.com/canvascast/canvascast-go/internal/pipeline"
)

// ShouldDeadLetter reports whether a job with the given retry count has
// exhausted its automatic retries.
func ShouldDeadLetter(retryCount int) bool {
	return pipeline.ShouldMoveToDeadLetterQueue(retryCount)
}

// DeadLetterServiceOptions groups dependencies for DeadLetterService.
type DeadLetterServiceOptions struct {
	Jobs    core.JobStore // Required
	Logger  *slog.Logger  // Optional
	Metrics statsd.Sink   // Optional
}

// DeadLetterService provides the operator surface over the dead letter
// queue. The transition INTO the queue belongs to the pipeline runner; this
// service only inspects and revives.
type DeadLetterService struct {
	jobs    core.JobStore
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewDeadLetterService constructs a new DeadLetterService.
func NewDeadLetterService(opts DeadLetterServiceOptions) (*DeadLetterService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobStore is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "dead_letter_service")
	}

	return &DeadLetterService{
		jobs:    opts.Jobs,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// MustNewDeadLetterService constructs a new DeadLetterService and panics on error.
func MustNewDeadLetterService(opts DeadLetterServiceOptions) *DeadLetterService {
	svc, err := NewDeadLetterService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// List returns the dead lettered jobs, newest first.
func (s *DeadLetterService) List(ctx context.Context) ([]*model.Job, error) {
	return s.jobs.ListDeadLettered(ctx)
}

// Retry pulls a job out of the dead letter queue: retry count back to zero,
// dead letter and error fields cleared, status queued. The workers will pick
// it up like any fresh job.
func (s *DeadLetterService) Retry(ctx context.Context, jobID string) (*model.Job, error) {
	if err := s.jobs.RetryFromDeadLetter(ctx, jobID); err != nil {
		return nil, fmt.Errorf("retry job %s from dead letter queue: %w", jobID, err)
	}

	if s.metrics != nil {
		s.metrics.Count("job.dlq_retry", 1, nil)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job released from dead letter queue", "job_id", jobID)
	}
	return s.jobs.GetByID(ctx, jobID)
}
