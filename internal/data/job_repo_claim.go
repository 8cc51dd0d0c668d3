package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data/pgxutil"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// SQL used by ClaimNext to atomically claim the next queued job. The
// per-user subquery enforces the concurrency cap at claim time: a user with
// too many active jobs keeps their remaining jobs queued until one finishes.
// FOR UPDATE SKIP LOCKED guarantees two workers never claim the same row.
const claimNextUpdateSQL = `
  WITH candidate AS (
    SELECT j.id, j.resume_step FROM jobs j
    WHERE j.status = 'queued'
      AND j.dlq_at IS NULL
      AND ($2 <= 0 OR (
        SELECT count(*) FROM jobs a
        WHERE a.user_id = j.user_id
          AND a.status NOT IN ('queued', 'ready', 'failed')
      ) < $2)
    ORDER BY j.created_at ASC, j.id ASC
    LIMIT 1
    FOR UPDATE OF j SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'scripting',
    progress = GREATEST(j.progress, 1),
    claimed_by = $1,
    claimed_at = $3,
    started_at = COALESCE(j.started_at, $3),
    error_code = NULL,
    error_message = NULL,
    updated_at = $3
  FROM candidate
  WHERE j.id = candidate.id
  RETURNING ` + claimReturningColumns

const claimReturningColumns = `
  j.id, j.project_id, j.user_id, j.status, j.progress,
  j.cost_credits_reserved, j.cost_credits_final,
  j.error_code, j.error_message, j.retry_count,
  j.claimed_by, j.claimed_at, j.started_at, j.finished_at,
  j.dlq_at, j.dlq_reason, j.checkpoint, j.resume_step,
  j.created_at, j.updated_at`

// ClaimNext atomically claims the next queued job for the given worker and
// moves it into the scripting status. Jobs scheduled for a single-step
// resume carry their resume_step through the claim; the runner inspects it.
func (r *JobRepo) ClaimNext(ctx context.Context, params core.ClaimNextParams) (*model.Job, error) {
	if params.WorkerID == "" {
		return nil, errors.New("worker id is required")
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now().UTC()

			rows, qerr := tx.Query(ctx, claimNextUpdateSQL, params.WorkerID, params.PerUserLimit, currentTime)
			if qerr != nil {
				return fmt.Errorf("claim job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoClaimableJobs
			}
			if cerr != nil {
				return fmt.Errorf("collect claimed job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoClaimableJobs) {
			return nil, model.ErrNoClaimableJobs
		}
		return nil, err
	}
	return job, nil
}

// AdvanceStatus persists a forward status transition for a claimed job.
// GREATEST keeps progress monotonic within a run even if a caller passes a
// stale value.
func (r *JobRepo) AdvanceStatus(ctx context.Context, params core.AdvanceStatusParams) error {
	if !params.Status.Valid() || params.Status.Terminal() {
		return fmt.Errorf("invalid pipeline status: %s", params.Status)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2,
		    progress = GREATEST(progress, $3),
		    updated_at = $4
		WHERE id = $1 AND claimed_by IS NOT NULL AND status NOT IN ('ready', 'failed')
	`, params.JobID, params.Status, params.Progress, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("advance status: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance status rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SaveCheckpoint persists the artifact snapshot after a successful step so a
// later single-step retry can rehydrate without redoing earlier work.
func (r *JobRepo) SaveCheckpoint(ctx context.Context, jobID string, checkpoint []byte) error {
	if len(checkpoint) == 0 {
		checkpoint = []byte(`{}`)
	}

	_, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET checkpoint = $2,
		    updated_at = $3
		WHERE id = $1
	`, jobID, checkpoint, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// MarkReady finalizes a successful run: status ready, progress 100, final
// cost recorded, claim released, resume marker cleared.
func (r *JobRepo) MarkReady(ctx context.Context, params core.MarkReadyParams) error {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'ready',
		    progress = 100,
		    cost_credits_final = $2,
		    claimed_by = NULL,
		    claimed_at = NULL,
		    finished_at = $3,
		    resume_step = NULL,
		    error_code = NULL,
		    error_message = NULL,
		    updated_at = $3
		WHERE id = $1 AND status NOT IN ('ready', 'failed')
	`, params.JobID, params.FinalCost, currentTime)
	if err != nil {
		return fmt.Errorf("mark job ready: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark ready rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed records a failed run, increments the retry count, and releases
// the claim. It returns the post-increment retry count so the caller can
// apply the dead-letter threshold.
func (r *JobRepo) MarkFailed(ctx context.Context, params core.MarkFailedParams) (int, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE jobs
		SET status = 'failed',
		    retry_count = retry_count + 1,
		    error_code = $2,
		    error_message = $3,
		    claimed_by = NULL,
		    claimed_at = NULL,
		    finished_at = $4,
		    updated_at = $4
		WHERE id = $1 AND status NOT IN ('ready', 'failed')
		RETURNING retry_count
	`

	var retryCount int
	err := r.DB.QueryRowContext(ctx, query,
		params.JobID, params.ErrorCode, params.ErrorMessage, currentTime,
	).Scan(&retryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrJobNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("mark job failed: %w", err)
	}
	return retryCount, nil
}

// ScheduleResume requeues a failed job to re-enter the pipeline at the named
// step on its next claim. The checkpointed artifacts stay on the row.
func (r *JobRepo) ScheduleResume(ctx context.Context, params core.ResumeParams) error {
	if params.StepName == "" {
		return errors.New("step name is required")
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'queued',
		    resume_step = $2,
		    error_code = NULL,
		    error_message = NULL,
		    finished_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'failed' AND dlq_at IS NULL
	`, params.JobID, params.StepName, currentTime)
	if err != nil {
		return fmt.Errorf("schedule resume: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule resume rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotRetryable
	}
	return nil
}
