// Package prommetrics exposes client kit metrics as Prometheus collectors.
package prommetrics

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-clientkit/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels attached to every collector. Tags outside this set are dropped and
// missing ones are reported as empty strings.
var Labels = []string{core.MetricTagModule, core.MetricTagOutcome, core.MetricTagCheckpointFail}

type Recorder struct {
	registerer prometheus.Registerer
	namespace  string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	onError    func(error)
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = strings.TrimSpace(namespace)
	}
}

func WithErrorHandler(fn func(error)) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.onError = fn
		}
	}
}

// NewRecorder registers collectors on registerer as metrics are first seen.
// A nil registerer uses the default one.
func NewRecorder(registerer prometheus.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	recorder := &Recorder{
		registerer: registerer,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		onError:    func(error) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if value < 0 {
		r.onError(fmt.Errorf("prommetrics: counter %s cannot decrease", name))
		return
	}
	counter, err := r.counter(name)
	if err != nil {
		r.onError(err)
		return
	}
	counter.With(labelValues(tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	histogram, err := r.histogram(name)
	if err != nil {
		r.onError(err)
		return
	}
	histogram.With(labelValues(tags)).Observe(value)
}

func (r *Recorder) counter(name string) (*prometheus.CounterVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if counter, ok := r.counters[name]; ok {
		return counter, nil
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      counterName(name),
		Help:      "Client kit counter " + name,
	}, Labels)
	if err := r.registerer.Register(counter); err != nil {
		return nil, fmt.Errorf("prommetrics: register %s: %w", name, err)
	}
	r.counters[name] = counter
	return counter, nil
}

func (r *Recorder) histogram(name string) (*prometheus.HistogramVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if histogram, ok := r.histograms[name]; ok {
		return histogram, nil
	}
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      MetricName(name),
		Help:      "Client kit histogram " + name,
		Buckets:   []float64{1, 5, 10, 50, 100, 250, 500, 1000, 5000},
	}, Labels)
	if err := r.registerer.Register(histogram); err != nil {
		return nil, fmt.Errorf("prommetrics: register %s: %w", name, err)
	}
	r.histograms[name] = histogram
	return histogram, nil
}

// MetricName converts a dotted metric name into a Prometheus-safe one.
func MetricName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func counterName(name string) string {
	converted := MetricName(name)
	if strings.HasSuffix(converted, "_total") {
		return converted
	}
	return converted + "_total"
}

func labelValues(tags map[string]string) prometheus.Labels {
	labels := make(prometheus.Labels, len(Labels))
	for _, label := range Labels {
		labels[label] = tags[label]
	}
	return labels
}

var _ core.MetricsRecorder = (*Recorder)(nil)
