// Package data provides the storage adapters backing the gistseek ports.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/gistseek/gistseek/internal/errors"

	"github.com/gistseek/gistseek/internal/domain/model"
)

// JobRepo persists search job metadata and status in PostgreSQL.
type JobRepo struct {
	DB *sql.DB

	// now is swappable for tests.
	now func() time.Time
}

// NewJobRepo creates a new JobRepo with the given database handle.
func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{DB: db, now: time.Now}
}

const jobColumns = `id, username, pattern, status, last_error, created_at, started_at, completed_at, updated_at`

// CreateJob persists write-once metadata with an initial PENDING status.
// A duplicate id maps to a Conflict error via the unique-violation code.
func (r *JobRepo) CreateJob(ctx context.Context, job *model.SearchJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	if job.ID == "" {
		return errors.New("job id is required")
	}

	status := job.Status
	if status == "" {
		status = model.StatusPending
	}

	// The service stamps CreatedAt with its own clock; fall back to the
	// repo clock for callers that leave it zero.
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO search_jobs (id, username, pattern, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, job.ID, job.Username, job.Pattern, status, createdAt)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("insert search job: %w", err))
	}

	job.Status = status
	job.CreatedAt = createdAt
	job.UpdatedAt = createdAt
	return nil
}

// GetJob returns the full job record, or a NotFound error for an unknown id.
func (r *JobRepo) GetJob(ctx context.Context, id string) (*model.SearchJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NotFound("job not found")
	}

	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM search_jobs
		WHERE id = $1
	`, id)

	job, err := scanJob(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// AdvanceStatus moves a job forward along the status state machine.
//
// The WHERE clause restricts the update to legal predecessor statuses, so
// a terminal row is never demoted by a late write from a redelivered
// attempt. Returns true when a row changed, (false, nil) when the row
// exists but the transition is not legal from its current status, and a
// NotFound error when no such job exists.
func (r *JobRepo) AdvanceStatus(
	ctx context.Context,
	id string,
	next model.SearchStatus,
	lastError string,
) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, errors.New("job id is required")
	}
	preds := next.Predecessors()
	if len(preds) == 0 {
		return false, fmt.Errorf("status %q is not reachable", next)
	}

	// Expand predecessor placeholders ($5, $6, ...).
	args := []any{id, string(next), lastError, r.now().UTC()}
	placeholders := make([]string, 0, len(preds))
	for _, p := range preds {
		args = append(args, string(p))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE search_jobs
		SET status = $2,
		    last_error = NULLIF($3, ''),
		    started_at = CASE WHEN $2 = 'STARTED' THEN COALESCE(started_at, $4) ELSE started_at END,
		    completed_at = CASE WHEN $2 IN ('SUCCESS', 'FAILURE') THEN COALESCE(completed_at, $4) ELSE completed_at END,
		    updated_at = $4
		WHERE id = $1 AND status IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("advance status: %w", err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("advance status rows affected: %w", err))
	}
	if rows > 0 {
		return true, nil
	}

	// Zero rows covers two cases: the row exists but the transition is
	// not legal from its current status, or there is no row at all. An
	// orphaned work item must surface as NotFound, not a silent no-op.
	var exists bool
	if err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM search_jobs WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("advance status existence check: %w", err))
	}
	if !exists {
		return false, apperrors.NotFound("job not found")
	}
	return false, nil
}

// DeleteJob removes a job record. Used for best-effort cleanup when
// submission fails between the metadata write and the enqueue.
func (r *JobRepo) DeleteJob(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM search_jobs WHERE id = $1`, id); err != nil {
		return apperrors.MapDBError(fmt.Errorf("delete search job: %w", err))
	}
	return nil
}

// Health checks the database connection.
func (r *JobRepo) Health(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.SearchJob, error) {
	var job model.SearchJob
	err := row.Scan(
		&job.ID,
		&job.Username,
		&job.Pattern,
		&job.Status,
		&job.LastError,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
