package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/canvascast/canvascast-go/internal/data/pgxutil"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// ProjectRepo provides read access to project rows for the pipeline plus the
// single write-back the core performs.
type ProjectRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewProjectRepo creates a new ProjectRepo with the given database connection and configuration.
func NewProjectRepo(db *sql.DB, cfg RepoConfig) *ProjectRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &ProjectRepo{DB: db, timeProvider: tp}
}

const projectColumns = `
  id,
  user_id,
  niche_preset,
  duration_minutes,
  template_id,
  voice_id,
  visual_preset,
  density,
  resolution,
  prompt,
  timeline_path,
  created_at,
  updated_at
`

// GetByID retrieves a project by its ID.
func (r *ProjectRepo) GetByID(ctx context.Context, id string) (*model.Project, error) {
	var project *model.Project
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+projectColumns+`
			FROM projects
			WHERE id = $1
		`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		p, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Project])
		if cerr != nil {
			return cerr
		}
		project = p
		return nil
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// SetTimelinePath writes the pipeline's timeline output path onto the
// project row.
func (r *ProjectRepo) SetTimelinePath(ctx context.Context, projectID, path string) error {
	if path == "" {
		return errors.New("timeline path is required")
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE projects
		SET timeline_path = $2,
		    updated_at = $3
		WHERE id = $1
	`, projectID, path, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("set timeline path: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set timeline path rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}
