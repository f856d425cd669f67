// Package otelmetrics records client kit metrics through an OpenTelemetry
// meter. Instruments are created on first use and cached by name.
package otelmetrics

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-clientkit/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/goliatone/go-clientkit"

type Recorder struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	onError    func(error)
}

type Option func(*Recorder)

// WithErrorHandler receives instrument creation failures. Recording never
// returns an error to the dispatch path.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.onError = fn
		}
	}
}

func NewRecorder(provider metric.MeterProvider, opts ...Option) (*Recorder, error) {
	if provider == nil {
		return nil, fmt.Errorf("otelmetrics: meter provider is required")
	}
	recorder := &Recorder{
		meter:      provider.Meter(instrumentationName),
		counters:   map[string]metric.Int64Counter{},
		histograms: map[string]metric.Float64Histogram{},
		onError:    func(error) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder, nil
}

func (r *Recorder) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	counter, err := r.counter(name)
	if err != nil {
		r.onError(err)
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attributes(tags)...))
}

func (r *Recorder) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	histogram, err := r.histogram(name)
	if err != nil {
		r.onError(err)
		return
	}
	histogram.Record(ctx, value, metric.WithAttributes(attributes(tags)...))
}

func (r *Recorder) counter(name string) (metric.Int64Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if counter, ok := r.counters[name]; ok {
		return counter, nil
	}
	counter, err := r.meter.Int64Counter(name, metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: counter %s: %w", name, err)
	}
	r.counters[name] = counter
	return counter, nil
}

func (r *Recorder) histogram(name string) (metric.Float64Histogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if histogram, ok := r.histograms[name]; ok {
		return histogram, nil
	}
	histogram, err := r.meter.Float64Histogram(name,
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 250, 500, 1000, 5000),
	)
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: histogram %s: %w", name, err)
	}
	r.histograms[name] = histogram
	return histogram, nil
}

func attributes(tags map[string]string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		out = append(out, attribute.String(key, tags[key]))
	}
	return out
}

var _ core.MetricsRecorder = (*Recorder)(nil)
