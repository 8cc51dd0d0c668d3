package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/canvascast/canvascast-go/internal/core"
)

// DraftRepo provides operations for anonymous draft prompts.
type DraftRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewDraftRepo creates a new DraftRepo with the given database connection and configuration.
func NewDraftRepo(db *sql.DB, cfg RepoConfig) *DraftRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &DraftRepo{DB: db, timeProvider: tp}
}

// CreateDraftParams groups parameters for DraftRepo.Create.
type CreateDraftParams struct {
	Token      string
	Prompt     string
	TTLSeconds int
}

// Create stores an anonymous draft prompt keyed by its one-time token.
func (r *DraftRepo) Create(ctx context.Context, params CreateDraftParams) (string, error) {
	if params.Token == "" {
		return "", errors.New("token is required")
	}
	if params.Prompt == "" {
		return "", errors.New("prompt is required")
	}
	if params.TTLSeconds <= 0 {
		return "", errors.New("ttl must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	var id string
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO draft_prompts(token, prompt, expires_at, created_at)
		VALUES ($1, $2, $3 + make_interval(secs => $4), $3)
		RETURNING id
	`, params.Token, params.Prompt, currentTime, params.TTLSeconds).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	return id, nil
}

// Claim atomically assigns an unclaimed, unexpired draft to the user. The
// WHERE clause is the claim CAS: a second caller with the same token matches
// zero rows and gets nil back.
func (r *DraftRepo) Claim(ctx context.Context, params core.ClaimDraftParams) (*string, error) {
	if params.Token == "" {
		return nil, errors.New("token is required")
	}
	if params.UserID == "" {
		return nil, errors.New("user id is required")
	}

	currentTime := r.timeProvider.Now().UTC()
	var id string
	err := r.DB.QueryRowContext(ctx, `
		UPDATE draft_prompts
		SET user_id = $2,
		    claimed_at = $3
		WHERE token = $1
		  AND user_id IS NULL
		  AND expires_at > $3
		RETURNING id
	`, params.Token, params.UserID, currentTime).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim draft: %w", err)
	}
	return &id, nil
}

// CleanupExpired deletes expired unclaimed drafts and returns the count.
func (r *DraftRepo) CleanupExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM draft_prompts
		WHERE id IN (
			SELECT id FROM draft_prompts
			WHERE user_id IS NULL AND expires_at <= $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
	`, r.timeProvider.Now().UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired drafts: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}
	return rowsAffected, nil
}
