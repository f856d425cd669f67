package core

import "context"

// Metric names emitted by the dispatch path and the client helper.
const (
	MetricQueueRejected     = "clientkit.queue.rejected"
	MetricQueueWait         = "clientkit.queue.wait_ms"
	MetricRateLimitWait     = "clientkit.ratelimit.wait_ms"
	MetricDispatchTotal     = "clientkit.dispatch.total"
	MetricDispatchRetry     = "clientkit.dispatch.retry"
	MetricHelperCheckpoint  = "clientkit.helper.checkpoint"
	MetricTagModule         = "module"
	MetricTagOutcome        = "outcome"
	MetricTagCheckpointFail = "failed"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// CloneTags copies tags so recorders never retain caller maps.
func CloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

// ModuleTags returns the base tag set for a module metric.
func ModuleTags(module ModuleKind) map[string]string {
	return map[string]string{MetricTagModule: string(module)}
}
