// Package sweeper wires the periodic maintenance service to the Postgres
// repositories for standalone or combined-process deployment.
package sweeper

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/canvascast/canvascast-go/config"
	"github.com/canvascast/canvascast-go/internal/data"
	"github.com/canvascast/canvascast-go/internal/observability/statsd"
	"github.com/canvascast/canvascast-go/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB              // Required
	Config config.SweeperConfig // Required

	Logger  *slog.Logger // Optional
	Metrics statsd.Sink  // Optional
}

// Runner owns a configured SweeperService bound to database-backed stores.
type Runner struct {
	service *service.SweeperService
	logger  *slog.Logger
}

// NewRunner creates a new sweeper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil {
		return nil, errors.New("DB is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repoCfg := data.RepoConfig{Logger: logger}
	svc, err := service.NewSweeperService(service.SweeperServiceOptions{
		Jobs:    data.NewJobRepo(opts.DB, repoCfg),
		Drafts:  data.NewDraftRepo(opts.DB, repoCfg),
		Config:  opts.Config,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Runner{
		service: svc,
		logger:  logger.With("component", "sweeper_runner"),
	}, nil
}

// Run executes sweep passes until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting sweeper")
	return r.service.Run(ctx)
}
