// Package searchrunner provides the worker adapter that executes gist
// search jobs delivered by the task queue.
package searchrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gistseek/gistseek/internal/core"
	"github.com/gistseek/gistseek/internal/domain/model"
	apperrors "github.com/gistseek/gistseek/internal/errors"
	"github.com/gistseek/gistseek/internal/observability/metrics"
	"github.com/gistseek/gistseek/internal/observability/statsd"
)

// errStoreWrite marks a failure writing to the job or match store. The
// attempt is abandoned without a terminal status or an ack, so the queue
// redelivers the job once the worker (or the store) recovers.
var errStoreWrite = errors.New("store write failed")

// RunnerOptions configures the search job runner adapter.
type RunnerOptions struct {
	Queue   core.TaskQueue
	Jobs    core.JobRepository
	Matches core.MatchRepository
	Lister  core.GistLister
	Fetcher core.RawContentFetcher

	Logger      *slog.Logger
	Concurrency int // worker goroutines; defaults to 1
	Metrics     statsd.Sink

	// Heartbeat is how often an in-flight delivery is extended so the
	// queue does not reclaim it while a slow scan is still running. Must
	// be well below the queue's redelivery idle threshold. Defaults to
	// 20 seconds.
	Heartbeat time.Duration
}

// Runner pulls work items off the queue and drives each search job from
// PENDING through a terminal status.
type Runner struct {
	queue   core.TaskQueue
	jobs    core.JobRepository
	matches core.MatchRepository
	lister  core.GistLister
	fetcher core.RawContentFetcher

	logger    *slog.Logger
	workers   int
	metrics   statsd.Sink
	heartbeat time.Duration
}

// NewRunner creates a search job runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 20 * time.Second
	}

	return &Runner{
		queue:     opts.Queue,
		jobs:      opts.Jobs,
		matches:   opts.Matches,
		lister:    opts.Lister,
		fetcher:   opts.Fetcher,
		logger:    logger.With("component", "searchrunner"),
		workers:   workers,
		metrics:   opts.Metrics,
		heartbeat: heartbeat,
	}, nil
}

func validateOptions(opts RunnerOptions) error {
	var missing []string
	for _, dep := range []struct {
		name  string
		value any
	}{
		{"TaskQueue", opts.Queue},
		{"JobRepository", opts.Jobs},
		{"MatchRepository", opts.Matches},
		{"GistLister", opts.Lister},
		{"RawContentFetcher", opts.Fetcher},
	} {
		if dep.value == nil {
			missing = append(missing, dep.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("search runner missing required dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Run starts the worker pool and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting search job runner", "workers", r.workers)

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.runWorkerLoop(gctx) })
	}
	return group.Wait()
}

// runWorkerLoop dequeues and processes work items until cancellation.
// Queue outages are logged and retried after a short pause rather than
// taking the whole pool down.
func (r *Runner) runWorkerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		delivery, err := r.queue.Dequeue(ctx)
		switch {
		case err == nil:
			r.processDelivery(ctx, delivery)
		case errors.Is(err, model.ErrNoWorkAvailable):
			// Block window expired; loop around and wait again.
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			r.logger.ErrorContext(ctx, "dequeue failed", "error", err)
			if !r.pause(ctx, 2*time.Second) {
				return nil
			}
		}
	}
	return ctx.Err()
}

// processDelivery runs one search job to a terminal status and acks the
// delivery. The ack is withheld when a store write fails so the queue
// redelivers the item.
func (r *Runner) processDelivery(ctx context.Context, delivery *core.Delivery) {
	item := delivery.Item
	logger := r.logger.With("job_id", item.JobID, "username", item.Username)

	// Keep the queue entry fresh while the scan runs so another worker
	// does not reclaim and re-execute a live job.
	stopHeartbeat := r.startHeartbeat(ctx, delivery, logger)
	defer stopHeartbeat()

	if delivery.Redelivered {
		done, err := r.alreadyTerminal(ctx, item.JobID)
		if err != nil {
			logger.ErrorContext(ctx, "terminal check failed, leaving for redelivery", "error", err)
			return
		}
		if done {
			logger.InfoContext(ctx, "redelivered job already terminal, acking")
			r.emitMetric(metrics.SearchMetric{Transition: "redelivered", Result: metrics.ResultNoop})
			r.ack(ctx, delivery, logger)
			return
		}
		logger.InfoContext(ctx, "re-executing redelivered job")
	}

	logger.InfoContext(ctx, "processing search job")
	start := time.Now()

	started, err := r.jobs.AdvanceStatus(ctx, item.JobID, model.StatusStarted, "")
	if err != nil {
		if apperrors.IsNotFound(err) {
			// Metadata was cleaned up after a failed submission; the
			// work item is an orphan.
			logger.WarnContext(ctx, "job metadata missing, discarding work item")
			r.ack(ctx, delivery, logger)
			return
		}
		logger.ErrorContext(ctx, "mark job started failed, leaving for redelivery", "error", err)
		return
	}
	if started {
		r.emitMetric(metrics.SearchMetric{Transition: "pending_to_started", Result: metrics.ResultSuccess})
	}

	matched, scanErr := r.scan(ctx, item)

	if ctx.Err() != nil && scanErr != nil {
		// Shutdown mid-scan; no terminal write, no ack. The job is
		// redelivered and re-executed from scratch.
		logger.InfoContext(ctx, "scan interrupted by shutdown, leaving for redelivery")
		return
	}
	if errors.Is(scanErr, errStoreWrite) {
		logger.ErrorContext(ctx, "match store write failed, leaving for redelivery", "error", scanErr)
		return
	}

	if scanErr != nil {
		logger.ErrorContext(ctx, "search job failed", "error", scanErr)
		if _, err := r.jobs.AdvanceStatus(ctx, item.JobID, model.StatusFailure, scanErr.Error()); err != nil {
			logger.ErrorContext(ctx, "mark job failed errored, leaving for redelivery", "error", err)
			return
		}
		r.emitMetric(metrics.SearchMetric{
			Transition: "started_to_failure",
			Result:     metrics.ResultError,
			Duration:   time.Since(start),
			Matches:    matched,
			Err:        scanErr,
		})
		r.ack(ctx, delivery, logger)
		return
	}

	if _, err := r.jobs.AdvanceStatus(ctx, item.JobID, model.StatusSuccess, ""); err != nil {
		logger.ErrorContext(ctx, "mark job succeeded errored, leaving for redelivery", "error", err)
		return
	}
	logger.InfoContext(ctx, "search job completed", "matches", matched, "elapsed", time.Since(start))
	r.emitMetric(metrics.SearchMetric{
		Transition: "started_to_success",
		Result:     metrics.ResultSuccess,
		Duration:   time.Since(start),
		Matches:    matched,
	})
	r.ack(ctx, delivery, logger)
}

// scan lists the user's gists and appends every gist whose content
// matches the pattern. Each gist contributes at most one match; its
// remaining files are skipped after the first hit. Returns how many
// gists matched and the error that aborted the scan, if any.
func (r *Runner) scan(ctx context.Context, item *model.WorkItem) (int, error) {
	pattern, err := regexp.Compile(item.Pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern: %w", err)
	}

	gists, err := r.lister.ListGists(ctx, item.Username)
	if err != nil {
		return 0, fmt.Errorf("list gists: %w", err)
	}

	matched := 0
	for i := range gists {
		gist := &gists[i]
		for _, name := range gist.SortedFilenames() {
			file := gist.Files[name]
			if file.RawURL == "" {
				continue
			}

			hit, err := r.fetcher.FetchMatch(ctx, file.RawURL, pattern)
			if err != nil {
				// Matches appended so far stay visible alongside the
				// FAILURE status.
				return matched, fmt.Errorf("scan gist %s file %s: %w", gist.ID, name, err)
			}
			if !hit {
				continue
			}

			if err := r.matches.AppendMatch(ctx, item.JobID, model.MatchResult(gist.Raw)); err != nil {
				return matched, fmt.Errorf("%w: append match for gist %s: %w", errStoreWrite, gist.ID, err)
			}
			matched++
			break
		}
	}
	return matched, nil
}

// alreadyTerminal reports whether the job reached a terminal status.
func (r *Runner) alreadyTerminal(ctx context.Context, jobID string) (bool, error) {
	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			// Orphaned work item; treat as done so it gets acked.
			return true, nil
		}
		return false, err
	}
	return job.Status.Terminal(), nil
}

// startHeartbeat extends the delivery on an interval until the returned
// stop function is called. A failed extension is logged and retried on
// the next tick; the terminal-status guard in the job repo contains any
// double execution the lost ownership could cause.
func (r *Runner) startHeartbeat(ctx context.Context, delivery *core.Delivery, logger *slog.Logger) func() {
	if delivery.Extend == nil {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := delivery.Extend(ctx); err != nil {
					logger.WarnContext(ctx, "extend delivery failed", "entry_id", delivery.DeliveryID, "error", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

func (r *Runner) ack(ctx context.Context, delivery *core.Delivery, logger *slog.Logger) {
	if err := delivery.Ack(ctx); err != nil {
		// The terminal status is already durable; the redelivered entry
		// is discarded by the terminal check on its next delivery.
		logger.ErrorContext(ctx, "ack failed", "entry_id", delivery.DeliveryID, "error", err)
	}
}

func (r *Runner) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (r *Runner) emitMetric(in metrics.SearchMetric) {
	if r.metrics == nil {
		return
	}
	metrics.EmitSearchLifecycle(r.metrics, in)
}
