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

// JobEventRepo provides append and list operations for the job transition log.
type JobEventRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewJobEventRepo creates a new JobEventRepo with the given database connection and configuration.
func NewJobEventRepo(db *sql.DB, cfg RepoConfig) *JobEventRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobEventRepo{DB: db, timeProvider: tp}
}

// Append writes one transition event for a job.
func (r *JobEventRepo) Append(ctx context.Context, params core.AppendJobEventParams) error {
	if params.JobID == "" {
		return errors.New("job id is required")
	}
	if params.Stage == "" {
		return errors.New("stage is required")
	}

	meta := params.Metadata
	if len(meta) == 0 {
		meta = []byte(`{}`)
	}

	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO job_events(job_id, stage, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, params.JobID, params.Stage, params.Message, []byte(meta), r.timeProvider.Now().UTC()); err != nil {
		return fmt.Errorf("append job event: %w", err)
	}
	return nil
}

// ListByJob returns a job's transition events, oldest first.
func (r *JobEventRepo) ListByJob(ctx context.Context, jobID string, limit int) ([]*model.JobEvent, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	if limit <= 0 {
		limit = 100 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}

	query := `
		SELECT id, job_id, stage, message, metadata, created_at
		FROM job_events
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	var result []*model.JobEvent
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, jobID, limit)
		if err != nil {
			return fmt.Errorf("query job events: %w", err)
		}
		defer rows.Close()

		vals, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.JobEvent])
		if err != nil {
			return fmt.Errorf("collect job events: %w", err)
		}
		result = vals
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}
