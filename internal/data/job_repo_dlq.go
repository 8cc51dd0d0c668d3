package data

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data/pgxutil"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// Advisory lock namespace for sweep operations so only one sweeper instance
// runs a given sweep at a time.
const advisoryLockSweepMajor int64 = 2001

func advisoryLockSweepMinor(name string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	hashValue := h.Sum32()
	maxInt32 := uint32(math.MaxInt32)
	if hashValue > maxInt32 {
		hashValue &= maxInt32
	}
	return int64(hashValue)
}

// MoveToDeadLetter parks an exhausted job in the dead letter queue. The row
// keeps its failed status and error fields for operator inspection.
func (r *JobRepo) MoveToDeadLetter(ctx context.Context, params core.DeadLetterParams) error {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    dlq_at = $2,
		    dlq_reason = $3,
		    finished_at = COALESCE(finished_at, $2),
		    claimed_by = NULL,
		    claimed_at = NULL,
		    updated_at = $2
		WHERE id = $1 AND dlq_at IS NULL
	`, params.JobID, currentTime, params.Reason)
	if err != nil {
		return fmt.Errorf("move to dead letter: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dead letter rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListDeadLettered returns all dead lettered jobs, newest first.
func (r *JobRepo) ListDeadLettered(ctx context.Context) ([]*model.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE dlq_at IS NOT NULL
		ORDER BY dlq_at DESC, id DESC
	`

	var result []*model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("query dead lettered jobs: %w", err)
		}
		defer rows.Close()

		vals, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Job])
		if err != nil {
			return fmt.Errorf("collect dead lettered jobs: %w", err)
		}
		result = vals
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// RetryFromDeadLetter returns a dead lettered job to the queue with a reset
// retry count so it gets a fresh set of attempts.
func (r *JobRepo) RetryFromDeadLetter(ctx context.Context, id string) error {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'queued',
		    retry_count = 0,
		    dlq_at = NULL,
		    dlq_reason = NULL,
		    error_code = NULL,
		    error_message = NULL,
		    started_at = NULL,
		    finished_at = NULL,
		    resume_step = NULL,
		    updated_at = $2
		WHERE id = $1 AND dlq_at IS NOT NULL
	`, id, currentTime)
	if err != nil {
		return fmt.Errorf("retry from dead letter: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dlq retry rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotInDLQ
	}
	return nil
}

// RequeueStale returns orphaned claimed jobs to the queue and increments
// their retry counts. A job is orphaned when its worker stopped heartbeating
// through updated_at for longer than the threshold, which usually means the
// worker process died mid-run.
func (r *JobRepo) RequeueStale(ctx context.Context, params core.RequeueStaleParams) (int64, error) {
	if params.OlderThanSeconds <= 0 {
		return 0, fmt.Errorf("stale threshold must be positive, got %d", params.OlderThanSeconds)
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			minorKey := advisoryLockSweepMinor("requeue_stale")
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockSweepMajor, minorKey,
			).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now().UTC()
			cutoff := currentTime.Add(-time.Duration(params.OlderThanSeconds) * time.Second)
			res, err := tx.ExecContext(ctx, `
          UPDATE jobs
          SET status = 'queued',
              retry_count = retry_count + 1,
              claimed_by = NULL,
              claimed_at = NULL,
              updated_at = $2
          WHERE id IN (
            SELECT id FROM jobs
            WHERE claimed_by IS NOT NULL
              AND status NOT IN ('queued', 'ready', 'failed')
              AND updated_at < $1
            ORDER BY updated_at ASC
            LIMIT $3
          )
        `, cutoff, currentTime, batchSize)
			if err != nil {
				return fmt.Errorf("requeue stale: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
