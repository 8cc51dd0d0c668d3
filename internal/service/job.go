package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/domain/pricing"
	"github.com/canvascast/canvascast-go/internal/observability/statsd"
	"github.com/canvascast/canvascast-go/internal/pipeline"
)

// Service-level sentinel errors the HTTP layer maps onto status codes.
var (
	// ErrInsufficientCredits is returned when a reservation cannot be
	// covered by the user's balance. The job row is never created.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrStepNotRetryable is returned for a single-step retry request
	// naming a step before the checkpoint threshold or no step at all.
	ErrStepNotRetryable = errors.New("step is not individually retryable")
)

const defaultStatusCacheTTL = 3 * time.Second

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Jobs     core.JobStore      // Required
	Credits  core.CreditStore   // Required
	Projects core.ProjectStore  // Required
	Events   core.JobEventStore // Required

	Estimator *pricing.Estimator // Required: reserve pricing

	Cache core.CacheRepository // Optional: status read cache
	// StatusTTL bounds how stale a cached status view may be. Defaults to 3s.
	StatusTTL time.Duration

	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: metrics sink
}

// JobService provides the job acceptance and introspection operations: the
// reserve-then-create handshake, cached status reads, and single-step retry.
type JobService struct {
	jobs     core.JobStore
	credits  core.CreditStore
	projects core.ProjectStore
	events   core.JobEventStore

	estimator *pricing.Estimator
	cache     core.CacheRepository
	cacheTTL  int
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Credits == nil {
		return nil, errors.New("CreditStore is required")
	}
	if opts.Projects == nil {
		return nil, errors.New("ProjectStore is required")
	}
	if opts.Events == nil {
		return nil, errors.New("JobEventStore is required")
	}
	if opts.Estimator == nil {
		return nil, errors.New("pricing Estimator is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	ttl := opts.StatusTTL
	if ttl <= 0 {
		ttl = defaultStatusCacheTTL
	}
	ttlSeconds := int(ttl / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	return &JobService{
		jobs:      opts.Jobs,
		credits:   opts.Credits,
		projects:  opts.Projects,
		events:    opts.Events,
		estimator: opts.Estimator,
		cache:     opts.Cache,
		cacheTTL:  ttlSeconds,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// CreateJobParams are the inputs for Create.
type CreateJobParams struct {
	ProjectID string
	UserID    string
}

// Create accepts a generation request: it prices the project, places the
// credit hold, and only then creates the queued job. The order is load
// bearing; a job row must never exist without its reservation.
func (s *JobService) Create(ctx context.Context, params CreateJobParams) (*model.Job, error) {
	project, err := s.projects.GetByID(ctx, params.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project.UserID != params.UserID {
		return nil, fmt.Errorf("project %s does not belong to user %s", params.ProjectID, params.UserID)
	}

	req := &model.CreateJobRequest{
		ID:                  uuid.NewString(),
		ProjectID:           params.ProjectID,
		UserID:              params.UserID,
		CostCreditsReserved: s.estimator.Reserve(project),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Hold first, keyed on the minted job id. An insufficient balance must
	// never leave a queued row behind.
	ok, err := s.credits.Reserve(ctx, core.ReserveCreditsParams{
		UserID: params.UserID,
		JobID:  req.ID,
		Amount: req.CostCreditsReserved,
	})
	if err != nil {
		return nil, fmt.Errorf("reserve credits: %w", err)
	}
	if !ok {
		return nil, ErrInsufficientCredits
	}

	job, err := s.jobs.Create(ctx, req)
	if err != nil {
		// Give the hold back; a reservation without a job would never settle.
		if releaseErr := s.credits.Release(ctx, req.ID); releaseErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "orphaned reservation after failed job create",
				"job_id", req.ID,
				"error", releaseErr,
			)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Count("job.accepted", 1, nil)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job accepted",
			"job_id", job.ID,
			"project_id", params.ProjectID,
			"reserved", req.CostCreditsReserved,
		)
	}
	return job, nil
}

// StatusView is the polling payload: job state plus its recent transitions.
type StatusView struct {
	Job    *model.Job        `json:"job"`
	Events []*model.JobEvent `json:"events"`

	CachedAt time.Time `json:"cached_at"`
}

// Status returns the job state with its event log, served from the short
// TTL cache when fresh. Stale reads up to the TTL are acceptable; polling
// clients hammer this endpoint.
func (s *JobService) Status(ctx context.Context, jobID string) (*StatusView, error) {
	cacheKey := statusCacheKey(jobID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			var view StatusView
			if err := json.Unmarshal(cached, &view); err == nil {
				return &view, nil
			}
			// Corrupt entry; fall through to the store and overwrite it.
		}
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByJob(ctx, jobID, 0)
	if err != nil {
		return nil, fmt.Errorf("list job events: %w", err)
	}

	view := &StatusView{Job: job, Events: events, CachedAt: time.Now().UTC()}

	if s.cache != nil {
		if data, err := json.Marshal(view); err == nil {
			if err := s.cache.Set(ctx, cacheKey, data, s.cacheTTL); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "status cache write failed", "job_id", jobID, "error", err)
			}
		}
	}
	return view, nil
}

// RetryStep schedules a failed job to re-enter the pipeline at the named
// step, reusing its checkpointed artifacts. Only steps at or after the
// checkpoint threshold qualify.
func (s *JobService) RetryStep(ctx context.Context, jobID, stepName string) (*model.Job, error) {
	if !pipeline.RetryableStep(stepName) {
		return nil, fmt.Errorf("%w: %q", ErrStepNotRetryable, stepName)
	}

	if err := s.jobs.ScheduleResume(ctx, core.ResumeParams{
		JobID:    jobID,
		StepName: stepName,
	}); err != nil {
		return nil, err
	}
	s.invalidateStatus(ctx, jobID)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job scheduled for step retry",
			"job_id", jobID,
			"step", stepName,
		)
	}
	return s.jobs.GetByID(ctx, jobID)
}

// Stats returns queue depth counts for dashboards and gauges.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	return s.jobs.Stats(ctx)
}

func (s *JobService) invalidateStatus(ctx context.Context, jobID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Delete(ctx, statusCacheKey(jobID)); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "status cache invalidation failed", "job_id", jobID, "error", err)
	}
}

func statusCacheKey(jobID string) string {
	return "job:status:" + jobID
}
