// Package core defines the ports between the gistseek service layer and its adapters.
package core

import (
	"context"
	"regexp"
	"time"

	"github.com/gistseek/gistseek/internal/domain/model"
)

// This file contains repository and collaborator interface definitions
// (ports in hexagonal architecture). Service and worker implementations
// depend on these interfaces, not on concrete adapters.

// JobRepository defines the durable store for job metadata and status.
type JobRepository interface {
	// CreateJob persists write-once metadata with an initial PENDING status.
	// A duplicate id surfaces as a Conflict error.
	CreateJob(ctx context.Context, job *model.SearchJob) error
	// GetJob returns the full job record, or a NotFound error for an unknown id.
	GetJob(ctx context.Context, id string) (*model.SearchJob, error)
	// AdvanceStatus moves a job forward along the status state machine.
	// The update is guarded: it applies only when the stored status is a
	// legal predecessor of next, so terminal states are never overwritten
	// and a status never regresses. Returns true when a row changed,
	// (false, nil) when the transition is not legal from the current
	// status, and a NotFound error for an unknown id.
	AdvanceStatus(ctx context.Context, id string, next model.SearchStatus, lastError string) (bool, error)
	// DeleteJob removes a job record. Used only for best-effort cleanup
	// when submission fails after the metadata write.
	DeleteJob(ctx context.Context, id string) error
}

// MatchRepository defines the append-only match list per job.
type MatchRepository interface {
	// AppendMatch atomically appends one match to the job's list.
	AppendMatch(ctx context.Context, jobID string, match model.MatchResult) error
	// ListMatches returns the full ordered match list observed so far.
	// The list never shrinks between successive calls.
	ListMatches(ctx context.Context, jobID string) ([]model.MatchResult, error)
}

// TaskQueue delivers work items from the submission service to workers,
// at-least-once.
type TaskQueue interface {
	// Enqueue returns once the item is durably queued.
	Enqueue(ctx context.Context, item *model.WorkItem) error
	// Dequeue blocks up to the queue's configured window for the next
	// item, returning model.ErrNoWorkAvailable when none arrived. The
	// returned Delivery must be Acked after the job reaches a terminal
	// state; unacked deliveries are eventually redelivered.
	Dequeue(ctx context.Context) (*Delivery, error)
}

// Delivery is one dequeued work item plus its acknowledgement handle.
type Delivery struct {
	Item *model.WorkItem
	// DeliveryID identifies the queue entry for acknowledgement.
	DeliveryID string
	// Redelivered is true when this entry was reclaimed from a consumer
	// that failed to ack it, meaning the job may have partially run.
	Redelivered bool
	// Ack acknowledges the delivery; safe to call once per delivery.
	Ack func(ctx context.Context) error
	// Extend refreshes the delivery's idle time so a slow but live
	// consumer is not mistaken for a crashed one and its entry reclaimed
	// mid-run. Optional; may be nil for queues without redelivery.
	Extend func(ctx context.Context) error
}

// GistLister lists the candidate gists for a username from the upstream API.
type GistLister interface {
	ListGists(ctx context.Context, username string) ([]model.GistMetadata, error)
}

// RawContentFetcher retrieves one file's raw content and reports whether
// the compiled pattern matches anywhere in it. Matching is pushed into
// the fetcher so content can be streamed instead of buffered.
type RawContentFetcher interface {
	FetchMatch(ctx context.Context, rawURL string, pattern *regexp.Regexp) (bool, error)
}

// HealthChecker reports readiness of an infrastructure dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Clock abstracts time for tests.
type Clock func() time.Time
