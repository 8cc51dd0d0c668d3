package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/canvascast/canvascast-go/config"
	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/observability/metrics"
	"github.com/canvascast/canvascast-go/internal/observability/statsd"
)

// SweeperServiceOptions groups dependencies for SweeperService.
type SweeperServiceOptions struct {
	Jobs    core.JobStore        // Required
	Drafts  core.DraftStore      // Required
	Config  config.SweeperConfig // Required
	Logger  *slog.Logger         // Optional
	Metrics statsd.Sink          // Optional
}

// SweeperService runs the periodic maintenance passes:
// - Requeueing jobs whose claiming worker died mid-run.
// - Deleting expired unclaimed draft prompts.
type SweeperService struct {
	jobs    core.JobStore
	drafts  core.DraftStore
	config  config.SweeperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewSweeperService constructs a new SweeperService.
func NewSweeperService(opts SweeperServiceOptions) (*SweeperService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Drafts == nil {
		return nil, errors.New("DraftStore is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sweeper_service")
		logger.Debug("SweeperService initialized",
			"interval", opts.Config.Interval,
			"stale_claim_age", opts.Config.StaleClaimAge,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &SweeperService{
		jobs:    opts.Jobs,
		drafts:  opts.Drafts,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SweeperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting sweeper service", "interval", s.config.Interval)
	}

	// Jitter so multiple instances started together do not all sweep at once.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.runSweep(ctx); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "initial sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "sweeper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runSweep(ctx); err != nil && s.logger != nil {
				// Keep sweeping on errors; the next tick may succeed.
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *SweeperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// runSweep performs one maintenance pass.
func (s *SweeperService) runSweep(ctx context.Context) error {
	start := time.Now()
	var errs []error

	requeued, err := s.jobs.RequeueStale(ctx, core.RequeueStaleParams{
		OlderThanSeconds: int(s.config.StaleClaimAge / time.Second),
		BatchSize:        s.config.BatchSize,
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("requeue stale jobs: %w", err))
	} else if requeued > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "requeued stale claimed jobs", "count", requeued)
	}

	cleaned, err := s.drafts.CleanupExpired(ctx, s.config.BatchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("cleanup expired drafts: %w", err))
	} else if cleaned > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted expired drafts", "count", cleaned)
	}

	s.emitSweepMetrics(ctx, requeued, cleaned, time.Since(start))

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *SweeperService) emitSweepMetrics(ctx context.Context, requeued, cleaned int64, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.Count("sweep.jobs_requeued", requeued, nil)
	s.metrics.Count("sweep.drafts_deleted", cleaned, nil)
	s.metrics.Timing("sweep.duration", elapsed, nil)

	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "queue depth stats failed", "error", err)
		}
		return
	}
	metrics.EmitQueueDepth(s.metrics, stats.Queued, stats.Active, stats.DeadLetter)
}
