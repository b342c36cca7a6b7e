// Package metrics defines the standard metric shapes emitted by the worker
// pools, reaper and hub.
package metrics

import (
	"time"

	obserrors "github.com/ladlehq/ladle/internal/observability/errors"
	"github.com/ladlehq/ladle/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Category   string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"category":   in.Category,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// EmitHubDelivery emits per-publish hub delivery metrics.
func EmitHubDelivery(sink statsd.Sink, event string, delivered, dropped int) {
	if sink == nil {
		return
	}

	tags := map[string]string{"event": event}
	if delivered > 0 {
		sink.Count("hub.delivered", int64(delivered), tags)
	}
	if dropped > 0 {
		sink.Count("hub.dropped", int64(dropped), CloneTags(tags))
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
