// Package metrics defines the metric names and tag sets the booking engine emits.
package metrics

import (
	"time"

	obserrors "github.com/dtapi/booking-engine/internal/observability/errors"
	"github.com/dtapi/booking-engine/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Metric names.
const (
	TransitionCount    = "job.transition"
	TransitionDuration = "job.transition.duration"
	DeliveryCount      = "notification.delivery"
	DispatchDuration   = "notification.dispatch.duration"
	FeedCount          = "distance.feed"
	SweepCount         = "reoffer.sweep"
)

// TransitionMetric describes one lifecycle operation.
type TransitionMetric struct {
	Op       string // create, assign, accept, cancel, ...
	From     string
	To       string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitTransition emits the transition counter and, when known, its duration.
func EmitTransition(sink statsd.Sink, in TransitionMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"op":     in.Op,
		"result": in.Result,
	}
	if in.From != "" {
		tags["from"] = in.From
	}
	if in.To != "" {
		tags["to"] = in.To
	}
	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Count(TransitionCount, 1, tags)
	if in.Duration > 0 {
		sink.Timing(TransitionDuration, in.Duration, CloneTags(tags))
	}
}

// DeliveryMetric describes one channel attempt to one target.
type DeliveryMetric struct {
	Kind    string
	Channel string
	Status  string // sent, failed, skipped
}

// EmitDelivery counts one channel attempt.
func EmitDelivery(sink statsd.Sink, in DeliveryMetric) {
	if sink == nil {
		return
	}
	sink.Count(DeliveryCount, 1, map[string]string{
		"kind":    in.Kind,
		"channel": in.Channel,
		"status":  in.Status,
	})
}

// EmitDispatchDuration records how long a whole fan-out took.
func EmitDispatchDuration(sink statsd.Sink, kind string, d time.Duration) {
	if sink == nil || d <= 0 {
		return
	}
	sink.Timing(DispatchDuration, d, map[string]string{"kind": kind})
}

// EmitFeed counts one distance feed write. part is "distance" or "admin".
func EmitFeed(sink statsd.Sink, part string, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"part": part, "result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count(FeedCount, 1, tags)
}

// EmitSweep counts jobs handled by one re-offer sweep.
func EmitSweep(sink statsd.Sink, reoffered, failed int) {
	if sink == nil {
		return
	}
	sink.Count(SweepCount, int64(reoffered), map[string]string{"result": ResultSuccess})
	if failed > 0 {
		sink.Count(SweepCount, int64(failed), map[string]string{"result": ResultError})
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
