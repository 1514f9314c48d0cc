package errors

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps database errors to AppError instances.
// It handles the patterns the search job repository can produce:
//   - sql.ErrNoRows / pgx.ErrNoRows → NotFound
//   - unique constraint violations → Conflict
//   - check / NOT NULL violations → Validation
//   - context timeouts/cancellations → Timeout/Canceled
//
// Unrecognized errors come back wrapped as Internal so callers always see
// an AppError at the service boundary.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "database operation timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "database operation was canceled", Cause: err}
	}

	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "record not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return &AppError{Code: ErrCodeConflict, Message: "record already exists", Cause: err}
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return &AppError{Code: ErrCodeValidation, Message: "invalid record", Cause: err}
		}
	}

	// Already an AppError? Pass it through unchanged.
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}

	return &AppError{Code: ErrCodeInternal, Message: "database error", Cause: err}
}
