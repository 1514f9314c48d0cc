// Package model defines the core data types and structures used throughout the gistseek search system.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SearchStatus represents the lifecycle state of a search job.
//
// The wire values are uppercase so clients polling the status endpoint
// observe the same vocabulary earlier versions of this API exposed.
type SearchStatus string

const (
	// StatusPending indicates a job has been submitted but not yet picked up by a worker.
	StatusPending SearchStatus = "PENDING"
	// StatusStarted indicates a worker is actively scanning gists for the job.
	StatusStarted SearchStatus = "STARTED"
	// StatusSuccess indicates the scan finished without an unrecoverable error.
	StatusSuccess SearchStatus = "SUCCESS"
	// StatusFailure indicates the scan was aborted by a fetch error or invalid pattern.
	StatusFailure SearchStatus = "FAILURE"
)

// ErrNoWorkAvailable is returned when the queue has no work item within the block window.
var ErrNoWorkAvailable = errors.New("no work available")

// Valid returns true if the SearchStatus is one of the known states.
func (s SearchStatus) Valid() bool {
	return s == StatusPending || s == StatusStarted || s == StatusSuccess || s == StatusFailure
}

// Terminal returns true for states that never transition again.
func (s SearchStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// rank orders statuses along the forward-only state machine.
func (s SearchStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusStarted:
		return 1
	case StatusSuccess, StatusFailure:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is a legal forward transition.
// Terminal states accept nothing; a status never regresses.
func (s SearchStatus) CanTransitionTo(next SearchStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Predecessors returns the statuses from which s may be reached.
// The repository uses this to build the guarded status UPDATE.
func (s SearchStatus) Predecessors() []SearchStatus {
	var preds []SearchStatus
	for _, from := range []SearchStatus{StatusPending, StatusStarted, StatusSuccess, StatusFailure} {
		if from.CanTransitionTo(s) {
			preds = append(preds, from)
		}
	}
	return preds
}

// SearchJob represents one submitted search request.
//
// Username and Pattern are write-once; only Status, LastError and the
// timestamps change after submission, and only at the hands of a worker.
type SearchJob struct {
	ID          string       `json:"id"                     db:"id"`
	Username    string       `json:"username"               db:"username"`
	Pattern     string       `json:"pattern"                db:"pattern"`
	Status      SearchStatus `json:"status"                 db:"status"`
	LastError   *string      `json:"last_error,omitempty"   db:"last_error"`
	CreatedAt   time.Time    `json:"created_at"             db:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time    `json:"updated_at"             db:"updated_at"`
}

// SubmitSearchRequest represents a request to start a new gist search.
type SubmitSearchRequest struct {
	Username string `json:"username"`
	Pattern  string `json:"pattern"`
}

// Validate validates the SubmitSearchRequest fields.
// The pattern must compile under Go's RE2 syntax; an invalid pattern is
// rejected here rather than surfacing later as a worker-side FAILURE.
func (r *SubmitSearchRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("username is required")
	}
	if r.Pattern == "" {
		return errors.New("pattern is required")
	}
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}

// WorkItem is the payload carried by the task queue from submission to a worker.
type WorkItem struct {
	JobID    string `json:"job_id"`
	Username string `json:"username"`
	Pattern  string `json:"pattern"`
}

// Validate checks that a dequeued work item is complete enough to execute.
func (w *WorkItem) Validate() error {
	if w.JobID == "" {
		return errors.New("job id is required")
	}
	if w.Username == "" {
		return errors.New("username is required")
	}
	if w.Pattern == "" {
		return errors.New("pattern is required")
	}
	return nil
}

// SearchResults is the client-visible projection of a job and its accumulated matches.
// Matches may be a partial list while the job is STARTED.
type SearchResults struct {
	Status    SearchStatus  `json:"status"`
	Username  string        `json:"username"`
	Pattern   string        `json:"pattern"`
	LastError *string       `json:"last_error,omitempty"`
	Matches   []MatchResult `json:"matches"`
}
