package vecseg

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

// EvictReason tells why a live instance left the cache.
type EvictReason string

const (
	// EvictCapacity is an LRU eviction under WithMaxCachedInstances.
	EvictCapacity EvictReason = "capacity"
	// EvictCorrupt follows fatal corruption detected during a read.
	EvictCorrupt EvictReason = "corrupt"
	// EvictDelete follows DeleteCollection.
	EvictDelete EvictReason = "delete"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus; see the metrics/prometheus package.
//
// The segment.Metrics methods are called by every live segment; the rest by
// the Manager.
type MetricsCollector interface {
	segment.Metrics

	// RecordConstruct is called after each segment instantiation attempt.
	RecordConstruct(t model.SegmentType, duration time.Duration, err error)

	// RecordCacheLookup is called by GetInstance. hit reports whether a
	// live instance was found.
	RecordCacheLookup(hit bool)

	// RecordEviction is called when a live instance leaves the cache.
	RecordEviction(reason EvictReason)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct {
	segment.NoopMetrics
}

func (NoopMetricsCollector) RecordConstruct(model.SegmentType, time.Duration, error) {}
func (NoopMetricsCollector) RecordCacheLookup(bool)                                {}
func (NoopMetricsCollector) RecordEviction(EvictReason)                            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	QueryResults     atomic.Int64
	QueryTotalNanos  atomic.Int64
	ApplyCount       atomic.Int64
	ApplyRecords     atomic.Int64
	ApplyErrors      atomic.Int64
	FlushCount       atomic.Int64
	FlushBytes       atomic.Int64
	FlushErrors      atomic.Int64
	ConstructCount   atomic.Int64
	ConstructErrors  atomic.Int64
	ConstructNanos   atomic.Int64
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
	CapacityEvicts   atomic.Int64
	CorruptionEvicts atomic.Int64
	DeleteEvicts     atomic.Int64
}

// RecordQuery implements segment.Metrics.
func (b *BasicMetricsCollector) RecordQuery(_ model.SegmentType, _ string, results int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
		return
	}
	b.QueryResults.Add(int64(results))
}

// RecordApply implements segment.Metrics.
func (b *BasicMetricsCollector) RecordApply(_ model.SegmentType, records int, _ time.Duration, err error) {
	b.ApplyCount.Add(1)
	if err != nil {
		b.ApplyErrors.Add(1)
		return
	}
	b.ApplyRecords.Add(int64(records))
}

// RecordFlush implements segment.Metrics.
func (b *BasicMetricsCollector) RecordFlush(_ model.SegmentType, bytes int, _ time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushBytes.Add(int64(bytes))
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// RecordConstruct implements MetricsCollector.
func (b *BasicMetricsCollector) RecordConstruct(_ model.SegmentType, duration time.Duration, err error) {
	b.ConstructCount.Add(1)
	b.ConstructNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ConstructErrors.Add(1)
	}
}

// RecordCacheLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheLookup(hit bool) {
	if hit {
		b.CacheHits.Add(1)
	} else {
		b.CacheMisses.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(reason EvictReason) {
	switch reason {
	case EvictCapacity:
		b.CapacityEvicts.Add(1)
	case EvictCorrupt:
		b.CorruptionEvicts.Add(1)
	case EvictDelete:
		b.DeleteEvicts.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		QueryCount:        b.QueryCount.Load(),
		QueryErrors:       b.QueryErrors.Load(),
		QueryResults:      b.QueryResults.Load(),
		QueryAvgNanos:     avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		ApplyCount:        b.ApplyCount.Load(),
		ApplyRecords:      b.ApplyRecords.Load(),
		ApplyErrors:       b.ApplyErrors.Load(),
		FlushCount:        b.FlushCount.Load(),
		FlushBytes:        b.FlushBytes.Load(),
		FlushErrors:       b.FlushErrors.Load(),
		ConstructCount:    b.ConstructCount.Load(),
		ConstructErrors:   b.ConstructErrors.Load(),
		ConstructAvgNanos: avg(b.ConstructNanos.Load(), b.ConstructCount.Load()),
		CacheHits:         b.CacheHits.Load(),
		CacheMisses:       b.CacheMisses.Load(),
		CapacityEvicts:    b.CapacityEvicts.Load(),
		CorruptionEvicts:  b.CorruptionEvicts.Load(),
		DeleteEvicts:      b.DeleteEvicts.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	QueryCount        int64
	QueryErrors       int64
	QueryResults      int64
	QueryAvgNanos     int64
	ApplyCount        int64
	ApplyRecords      int64
	ApplyErrors       int64
	FlushCount        int64
	FlushBytes        int64
	FlushErrors       int64
	ConstructCount    int64
	ConstructErrors   int64
	ConstructAvgNanos int64
	CacheHits         int64
	CacheMisses       int64
	CapacityEvicts    int64
	CorruptionEvicts  int64
	DeleteEvicts      int64
}
