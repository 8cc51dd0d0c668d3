package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/canvascast/canvascast-go/internal/data/pgxutil"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for the job state machine.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  project_id,
  user_id,
  status,
  progress,
  cost_credits_reserved,
  cost_credits_final,
  error_code,
  error_message,
  retry_count,
  claimed_by,
  claimed_at,
  started_at,
  finished_at,
  dlq_at,
  dlq_reason,
  checkpoint,
  resume_step,
  created_at,
  updated_at
`

// Create inserts a new queued job. The caller is expected to have reserved
// credits before calling; the reserved amount is recorded on the row.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	query := `
      INSERT INTO jobs(id, project_id, user_id, status, progress, cost_credits_reserved)
      VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, 'queued', 0, $4)
      RETURNING ` + jobColumns

	var job *model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, req.ID, req.ProjectID, req.UserID, req.CostCreditsReserved)
		if qerr != nil {
			return fmt.Errorf("insert job: %w", qerr)
		}
		defer rows.Close()

		j, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
		if cerr != nil {
			return fmt.Errorf("collect job: %w", cerr)
		}
		job = j
		return nil
	}); err != nil {
		return nil, err
	}

	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE id = $1
		`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		j, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
		if cerr != nil {
			return cerr
		}
		job = j
		return nil
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Stats returns counts of jobs in coarse states for the dashboard and
// health endpoints.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'queued' AND dlq_at IS NULL)  AS queued,
    count(*) FILTER (WHERE status NOT IN ('queued', 'ready', 'failed')) AS active,
    count(*) FILTER (WHERE status = 'ready')                      AS ready,
    count(*) FILTER (WHERE status = 'failed' AND dlq_at IS NULL)  AS failed,
    count(*) FILTER (WHERE dlq_at IS NOT NULL)                    AS dead_letter
  FROM jobs
  `).Scan(
		&s.Queued,
		&s.Active,
		&s.Ready,
		&s.Failed,
		&s.DeadLetter,
	)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return &s, nil
}
