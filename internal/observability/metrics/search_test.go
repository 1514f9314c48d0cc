package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gistseek/gistseek/internal/errors"
)

type recordedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct {
	metrics []recordedMetric
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.metrics = append(r.metrics, recordedMetric{kind: "count", name: name, value: float64(value), tags: tags})
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	r.metrics = append(r.metrics, recordedMetric{kind: "gauge", name: name, value: value, tags: tags})
}

func (r *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	r.metrics = append(r.metrics, recordedMetric{kind: "timing", name: name, value: float64(value), tags: tags})
}

func (r *recordingSink) find(name string) (recordedMetric, bool) {
	for _, m := range r.metrics {
		if m.name == name {
			return m, true
		}
	}
	return recordedMetric{}, false
}

func TestEmitSearchLifecycle_TerminalSuccess(t *testing.T) {
	sink := &recordingSink{}

	EmitSearchLifecycle(sink, SearchMetric{
		Transition: "started_to_success",
		Result:     ResultSuccess,
		Duration:   2 * time.Second,
		Matches:    3,
	})

	transition, ok := sink.find("search.transition")
	require.True(t, ok)
	assert.Equal(t, "count", transition.kind)
	assert.Equal(t, "started_to_success", transition.tags["transition"])
	assert.Equal(t, ResultSuccess, transition.tags["result"])
	assert.NotContains(t, transition.tags, "error_class")

	duration, ok := sink.find("search.duration")
	require.True(t, ok)
	assert.Equal(t, "timing", duration.kind)
	assert.Equal(t, float64(2*time.Second), duration.value)

	matches, ok := sink.find("search.matches")
	require.True(t, ok)
	assert.Equal(t, "gauge", matches.kind)
	assert.Equal(t, float64(3), matches.value)
}

func TestEmitSearchLifecycle_FailureTagsErrorClass(t *testing.T) {
	sink := &recordingSink{}

	EmitSearchLifecycle(sink, SearchMetric{
		Transition: "started_to_failure",
		Result:     ResultError,
		Duration:   time.Second,
		Err:        apperrors.Fetch("upstream returned 500"),
	})

	transition, ok := sink.find("search.transition")
	require.True(t, ok)
	assert.Equal(t, "errors_apperror", transition.tags["error_class"])

	// Zero matches means no gauge.
	_, ok = sink.find("search.matches")
	assert.False(t, ok)
}

func TestEmitSearchLifecycle_NonTerminalSkipsDurationAndMatches(t *testing.T) {
	sink := &recordingSink{}

	EmitSearchLifecycle(sink, SearchMetric{
		Transition: "pending_to_started",
		Result:     ResultSuccess,
	})

	require.Len(t, sink.metrics, 1)
	assert.Equal(t, "search.transition", sink.metrics[0].name)
}

func TestEmitSearchLifecycle_NilSink(t *testing.T) {
	// Must not panic.
	EmitSearchLifecycle(nil, SearchMetric{Transition: "redelivered", Result: ResultNoop})
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	assert.Nil(t, CloneTags(map[string]string{}))

	src := map[string]string{"a": "b"}
	cp := CloneTags(src)
	cp["a"] = "mutated"
	assert.Equal(t, "b", src["a"])
}
