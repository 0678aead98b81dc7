// Package prometheus exports Manager and segment metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, _ := vecprom.New(reg)
//	m, _ := vecseg.New(store, vecseg.WithMetricsCollector(mc))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/vecseg"
	"github.com/hupe1980/vecseg/model"
)

// Compile time check.
var _ vecseg.MetricsCollector = (*Collector)(nil)

// Collector implements vecseg.MetricsCollector with Prometheus vectors.
type Collector struct {
	opLatency    *prometheus.HistogramVec
	queryResults *prometheus.CounterVec
	applied      *prometheus.CounterVec
	flushBytes   *prometheus.CounterVec
	constructs   *prometheus.HistogramVec
	lookups      *prometheus.CounterVec
	evictions    *prometheus.CounterVec
}

// Option configures a Collector.
type Option func(*options)

type options struct {
	namespace string
	buckets   []float64
}

// WithNamespace prefixes every metric name. Defaults to "vecseg".
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithBuckets sets the latency histogram buckets in seconds.
func WithBuckets(buckets []float64) Option {
	return func(o *options) {
		o.buckets = buckets
	}
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer, optFns ...Option) (*Collector, error) {
	o := options{
		namespace: "vecseg",
		buckets:   prometheus.DefBuckets,
	}
	for _, fn := range optFns {
		fn(&o)
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.namespace,
			Name:      "segment_operation_latency_seconds",
			Help:      "Latency of segment reads, applies and flushes",
			Buckets:   o.buckets,
		}, []string{"type", "op", "status"}),
		queryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "segment_query_results_total",
			Help:      "Records returned by segment reads",
		}, []string{"type", "op"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "segment_applied_records_total",
			Help:      "Log records applied to segments",
		}, []string{"type"}),
		flushBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "segment_snapshot_bytes_total",
			Help:      "Compressed snapshot bytes written",
		}, []string{"type"}),
		constructs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.namespace,
			Name:      "segment_construction_seconds",
			Help:      "Duration of segment instantiation",
			Buckets:   o.buckets,
		}, []string{"type", "status"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "instance_cache_lookups_total",
			Help:      "Instance cache lookups by result",
		}, []string{"result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "instance_evictions_total",
			Help:      "Live instances removed from the cache",
		}, []string{"reason"}),
	}

	for _, col := range []prometheus.Collector{
		c.opLatency, c.queryResults, c.applied, c.flushBytes, c.constructs, c.lookups, c.evictions,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordQuery implements segment.Metrics.
func (c *Collector) RecordQuery(t model.SegmentType, op string, results int, d time.Duration, err error) {
	c.opLatency.WithLabelValues(string(t), op, status(err)).Observe(d.Seconds())
	if err == nil {
		c.queryResults.WithLabelValues(string(t), op).Add(float64(results))
	}
}

// RecordApply implements segment.Metrics.
func (c *Collector) RecordApply(t model.SegmentType, records int, d time.Duration, err error) {
	c.opLatency.WithLabelValues(string(t), "apply", status(err)).Observe(d.Seconds())
	if err == nil {
		c.applied.WithLabelValues(string(t)).Add(float64(records))
	}
}

// RecordFlush implements segment.Metrics.
func (c *Collector) RecordFlush(t model.SegmentType, bytes int, d time.Duration, err error) {
	c.opLatency.WithLabelValues(string(t), "flush", status(err)).Observe(d.Seconds())
	c.flushBytes.WithLabelValues(string(t)).Add(float64(bytes))
}

// RecordConstruct implements vecseg.MetricsCollector.
func (c *Collector) RecordConstruct(t model.SegmentType, d time.Duration, err error) {
	c.constructs.WithLabelValues(string(t), status(err)).Observe(d.Seconds())
}

// RecordCacheLookup implements vecseg.MetricsCollector.
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.lookups.WithLabelValues(result).Inc()
}

// RecordEviction implements vecseg.MetricsCollector.
func (c *Collector) RecordEviction(reason vecseg.EvictReason) {
	c.evictions.WithLabelValues(string(reason)).Inc()
}
