// Package metrics emits lifecycle metrics for search jobs.
package metrics

import (
	"time"

	obserrors "github.com/gistseek/gistseek/internal/observability/errors"
	"github.com/gistseek/gistseek/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// SearchMetric captures one search job lifecycle event.
type SearchMetric struct {
	// Transition names the status edge, e.g. "pending_to_started".
	Transition string
	Result     string
	// Duration covers the whole scan when the transition is terminal.
	Duration time.Duration
	// Matches is how many gists matched; tagged on terminal transitions.
	Matches int
	Err     error
}

// EmitSearchLifecycle emits standardised search lifecycle metrics.
func EmitSearchLifecycle(sink statsd.Sink, in SearchMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("search.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("search.duration", in.Duration, CloneTags(tags))
	}
	if in.Matches > 0 {
		sink.Gauge("search.matches", float64(in.Matches), CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
