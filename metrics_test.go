package vecseg

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/vecseg/model"
)

func TestBasicMetricsCollector(t *testing.T) {
	b := &BasicMetricsCollector{}
	boom := errors.New("boom")

	b.RecordQuery(model.SegmentTypeHNSW, "query_vectors", 10, 2*time.Millisecond, nil)
	b.RecordQuery(model.SegmentTypeMetadata, "get_metadata", 0, 4*time.Millisecond, boom)
	b.RecordApply(model.SegmentTypeFlat, 5, time.Millisecond, nil)
	b.RecordApply(model.SegmentTypeFlat, 3, time.Millisecond, boom)
	b.RecordFlush(model.SegmentTypeFlat, 1024, time.Millisecond, nil)
	b.RecordConstruct(model.SegmentTypeHNSW, 10*time.Millisecond, nil)
	b.RecordConstruct(model.SegmentTypeHNSW, 30*time.Millisecond, boom)
	b.RecordCacheLookup(true)
	b.RecordCacheLookup(false)
	b.RecordCacheLookup(true)
	b.RecordEviction(EvictCapacity)
	b.RecordEviction(EvictCorrupt)
	b.RecordEviction(EvictDelete)
	b.RecordEviction(EvictDelete)

	stats := b.GetStats()
	assert.Equal(t, int64(2), stats.QueryCount)
	assert.Equal(t, int64(1), stats.QueryErrors)
	assert.Equal(t, int64(10), stats.QueryResults)
	assert.Equal(t, (3 * time.Millisecond).Nanoseconds(), stats.QueryAvgNanos)
	assert.Equal(t, int64(2), stats.ApplyCount)
	assert.Equal(t, int64(5), stats.ApplyRecords)
	assert.Equal(t, int64(1), stats.ApplyErrors)
	assert.Equal(t, int64(1024), stats.FlushBytes)
	assert.Equal(t, int64(2), stats.ConstructCount)
	assert.Equal(t, int64(1), stats.ConstructErrors)
	assert.Equal(t, (20 * time.Millisecond).Nanoseconds(), stats.ConstructAvgNanos)
	assert.Equal(t, int64(2), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.CapacityEvicts)
	assert.Equal(t, int64(1), stats.CorruptionEvicts)
	assert.Equal(t, int64(2), stats.DeleteEvicts)
}

func TestBasicMetricsCollector_Empty(t *testing.T) {
	stats := (&BasicMetricsCollector{}).GetStats()
	assert.Zero(t, stats.QueryAvgNanos)
	assert.Zero(t, stats.ConstructAvgNanos)
}

func TestNoopMetricsCollector(t *testing.T) {
	var mc MetricsCollector = NoopMetricsCollector{}
	mc.RecordQuery(model.SegmentTypeFlat, "get_vectors", 1, time.Millisecond, nil)
	mc.RecordConstruct(model.SegmentTypeFlat, time.Millisecond, nil)
	mc.RecordCacheLookup(true)
	mc.RecordEviction(EvictCapacity)
}
