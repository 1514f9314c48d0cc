// Package service contains the application services that sit between the
// HTTP layer and the repositories.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gistseek/gistseek/internal/core"
	"github.com/gistseek/gistseek/internal/domain/model"
	apperrors "github.com/gistseek/gistseek/internal/errors"
)

// SearchServiceOptions configures a SearchService.
type SearchServiceOptions struct {
	Jobs    core.JobRepository
	Matches core.MatchRepository
	Queue   core.TaskQueue
	Logger  *slog.Logger
	Clock   core.Clock
}

// SearchService handles submission and retrieval of gist search jobs.
type SearchService struct {
	jobs    core.JobRepository
	matches core.MatchRepository
	queue   core.TaskQueue
	logger  *slog.Logger
	now     core.Clock
}

// NewSearchService creates a SearchService from options.
func NewSearchService(opts SearchServiceOptions) *SearchService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &SearchService{
		jobs:    opts.Jobs,
		matches: opts.Matches,
		queue:   opts.Queue,
		logger:  logger,
		now:     now,
	}
}

// Submit validates the request, persists the job metadata with a PENDING
// status and enqueues a work item. It returns the new job id only after
// both writes succeed, so a returned id is always pollable.
func (s *SearchService) Submit(ctx context.Context, req *model.SubmitSearchRequest) (string, error) {
	if req == nil {
		return "", apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return "", apperrors.Validation(err.Error())
	}

	job := &model.SearchJob{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Pattern:   req.Pattern,
		Status:    model.StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", err
	}

	item := &model.WorkItem{
		JobID:    job.ID,
		Username: job.Username,
		Pattern:  job.Pattern,
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		// Roll the metadata back so the client never receives an id
		// whose job can never run. Best effort: a leftover PENDING row
		// is preferable to masking the enqueue failure.
		if delErr := s.jobs.DeleteJob(ctx, job.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "cleanup of unqueued job failed",
				"job_id", job.ID, "error", delErr)
		}
		return "", err
	}

	s.logger.InfoContext(ctx, "search job submitted", "job_id", job.ID, "username", job.Username)
	return job.ID, nil
}

// GetStatus returns the current lifecycle status of a job, plus the
// failure detail when the job failed.
func (s *SearchService) GetStatus(ctx context.Context, id string) (model.SearchStatus, *string, error) {
	if id == "" {
		return "", nil, apperrors.Validation("request id is required")
	}
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return job.Status, job.LastError, nil
}

// GetResults returns the job's metadata together with every match
// recorded so far. While the job is STARTED the list may be partial; it
// only ever grows between calls.
func (s *SearchService) GetResults(ctx context.Context, id string) (*model.SearchResults, error) {
	if id == "" {
		return nil, apperrors.Validation("request id is required")
	}

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	matches, err := s.matches.ListMatches(ctx, id)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []model.MatchResult{}
	}

	return &model.SearchResults{
		Status:    job.Status,
		Username:  job.Username,
		Pattern:   job.Pattern,
		LastError: job.LastError,
		Matches:   matches,
	}, nil
}
