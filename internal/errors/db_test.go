package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"no rows", sql.ErrNoRows, ErrCodeNotFound},
		{"wrapped no rows", fmt.Errorf("get job: %w", sql.ErrNoRows), ErrCodeNotFound},
		{"unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, ErrCodeConflict},
		{"check violation", &pgconn.PgError{Code: pgerrcode.CheckViolation}, ErrCodeValidation},
		{"not null violation", &pgconn.PgError{Code: pgerrcode.NotNullViolation}, ErrCodeValidation},
		{"deadline exceeded", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeCanceled},
		{"unknown", errors.New("disk on fire"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapDBError(tt.err)
			require.Error(t, mapped)
			assert.Equal(t, tt.code, GetCode(mapped))
			assert.ErrorIs(t, mapped, tt.err, "cause must be preserved")
		})
	}
}

func TestMapDBError_Nil(t *testing.T) {
	assert.NoError(t, MapDBError(nil))
}

func TestMapDBError_AppErrorPassthrough(t *testing.T) {
	orig := Conflict("job already exists")
	assert.Equal(t, orig, MapDBError(orig))
}
