// Package metrics exposes engine counters and histograms through Prometheus.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-bulkedit/core"
	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type Option func(*PrometheusRecorder)

func WithLogger(logger core.Logger) Option {
	return func(r *PrometheusRecorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *PrometheusRecorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// PrometheusRecorder maps engine metric names to Prometheus vectors. The label
// set of a metric is fixed by the first observation; later tags outside that
// set are dropped and missing ones are recorded as empty.
type PrometheusRecorder struct {
	registerer prometheus.Registerer
	buckets    []float64
	logger     core.Logger

	mu         sync.Mutex
	counters   map[string]*counterEntry
	histograms map[string]*histogramEntry
}

type counterEntry struct {
	labels []string
	vec    *prometheus.CounterVec
}

type histogramEntry struct {
	labels []string
	vec    *prometheus.HistogramVec
}

func NewPrometheusRecorder(registerer prometheus.Registerer, opts ...Option) *PrometheusRecorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	recorder := &PrometheusRecorder{
		registerer: registerer,
		buckets:    durationBuckets,
		counters:   map[string]*counterEntry{},
		histograms: map[string]*histogramEntry{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *PrometheusRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	entry, err := r.counter(name, tags)
	if err != nil {
		r.warn("metrics: counter unavailable", name, err)
		return
	}
	entry.vec.WithLabelValues(labelValues(entry.labels, tags)...).Add(float64(value))
}

func (r *PrometheusRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	entry, err := r.histogram(name, tags)
	if err != nil {
		r.warn("metrics: histogram unavailable", name, err)
		return
	}
	entry.vec.WithLabelValues(labelValues(entry.labels, tags)...).Observe(value)
}

func (r *PrometheusRecorder) counter(name string, tags map[string]string) (*counterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.counters[name]; ok {
		return entry, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricName(name) + "_total",
		Help: fmt.Sprintf("Engine counter %s.", name),
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		existing, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		if vec, ok = existing.ExistingCollector.(*prometheus.CounterVec); !ok {
			return nil, err
		}
	}
	entry := &counterEntry{labels: labels, vec: vec}
	r.counters[name] = entry
	return entry, nil
}

func (r *PrometheusRecorder) histogram(name string, tags map[string]string) (*histogramEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.histograms[name]; ok {
		return entry, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    MetricName(name),
		Help:    fmt.Sprintf("Engine histogram %s.", name),
		Buckets: r.buckets,
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		existing, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		if vec, ok = existing.ExistingCollector.(*prometheus.HistogramVec); !ok {
			return nil, err
		}
	}
	entry := &histogramEntry{labels: labels, vec: vec}
	r.histograms[name] = entry
	return entry, nil
}

func (r *PrometheusRecorder) warn(msg string, name string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(msg, "metric", name, "error", err)
}

// MetricName converts a dotted engine metric name into a Prometheus name.
func MetricName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		names = append(names, MetricName(key))
	}
	sort.Strings(names)
	return names
}

func labelValues(labels []string, tags map[string]string) []string {
	byName := make(map[string]string, len(tags))
	for key, value := range tags {
		byName[MetricName(key)] = value
	}
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = byName[label]
	}
	return values
}

var _ core.MetricsRecorder = (*PrometheusRecorder)(nil)
