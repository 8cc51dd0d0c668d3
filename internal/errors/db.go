package errors

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps database errors to AppError instances:
//   - pgx.ErrNoRows → NotFound
//   - unique constraint violations → Conflict
//   - foreign key violations → ForeignKey
//   - check / not-null violations → Validation
//   - context timeouts/cancellations → Timeout/Canceled
//
// Unrecognized errors are returned unchanged so callers can still wrap them.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "database operation timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "database operation canceled", Cause: err}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "record not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{Code: ErrCodeConflict, Message: "record already exists", Cause: err, Field: pgErr.ConstraintName}
	case pgerrcode.ForeignKeyViolation:
		return &AppError{Code: ErrCodeForeignKey, Message: "related record constraint violated", Cause: err, Field: pgErr.ConstraintName}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return &AppError{Code: ErrCodeValidation, Message: "record failed database validation", Cause: err, Field: pgErr.ColumnName}
	case pgerrcode.QueryCanceled:
		return &AppError{Code: ErrCodeCanceled, Message: "database query canceled", Cause: err}
	}

	return err
}
