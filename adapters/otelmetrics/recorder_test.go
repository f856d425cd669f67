package otelmetrics

import (
	"context"
	"testing"

	"github.com/goliatone/go-clientkit/core"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestRecorder(t *testing.T) (*Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	recorder, err := NewRecorder(provider)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	return recorder, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestCounterCarriesTags(t *testing.T) {
	recorder, reader := newTestRecorder(t)
	ctx := context.Background()
	tags := map[string]string{core.MetricTagModule: "helix", core.MetricTagOutcome: "decoded"}

	recorder.IncCounter(ctx, core.MetricDispatchTotal, 1, tags)
	recorder.IncCounter(ctx, core.MetricDispatchTotal, 2, tags)

	metrics := collect(t, reader)
	sum, ok := metrics[core.MetricDispatchTotal].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected int64 sum, got %T", metrics[core.MetricDispatchTotal].Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected data points %+v", sum.DataPoints)
	}
	if value, ok := sum.DataPoints[0].Attributes.Value(attribute.Key(core.MetricTagModule)); !ok || value.AsString() != "helix" {
		t.Fatalf("expected module attribute, got %v", sum.DataPoints[0].Attributes)
	}
}

func TestHistogramRecordsObservations(t *testing.T) {
	recorder, reader := newTestRecorder(t)
	ctx := context.Background()

	recorder.ObserveHistogram(ctx, core.MetricRateLimitWait, 12, core.ModuleTags(core.ModuleChat))
	recorder.ObserveHistogram(ctx, core.MetricRateLimitWait, 30, core.ModuleTags(core.ModuleChat))

	metrics := collect(t, reader)
	histogram, ok := metrics[core.MetricRateLimitWait].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected float64 histogram, got %T", metrics[core.MetricRateLimitWait].Data)
	}
	if len(histogram.DataPoints) != 1 {
		t.Fatalf("expected one series, got %d", len(histogram.DataPoints))
	}
	point := histogram.DataPoints[0]
	if point.Count != 2 || point.Sum != 42 {
		t.Fatalf("unexpected histogram point count=%d sum=%v", point.Count, point.Sum)
	}
}

func TestNewRecorderRequiresProvider(t *testing.T) {
	if _, err := NewRecorder(nil); err == nil {
		t.Fatalf("expected error")
	}
}
