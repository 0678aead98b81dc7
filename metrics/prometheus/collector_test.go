package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg"
	"github.com/hupe1980/vecseg/blobstore"
	"github.com/hupe1980/vecseg/model"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg, WithNamespace("test"), WithBuckets([]float64{0.001, 0.01, 0.1}))
	require.NoError(t, err)

	boom := errors.New("boom")
	c.RecordQuery(model.SegmentTypeHNSW, "query_vectors", 3, time.Millisecond, nil)
	c.RecordQuery(model.SegmentTypeHNSW, "query_vectors", 5, time.Millisecond, boom)
	c.RecordApply(model.SegmentTypeMetadata, 4, time.Millisecond, nil)
	c.RecordFlush(model.SegmentTypeFlat, 512, time.Millisecond, nil)
	c.RecordConstruct(model.SegmentTypeHNSW, time.Millisecond, nil)
	c.RecordCacheLookup(true)
	c.RecordCacheLookup(true)
	c.RecordCacheLookup(false)
	c.RecordEviction(vecseg.EvictCorrupt)

	assert.Equal(t, float64(3), testutil.ToFloat64(c.queryResults.WithLabelValues("vector/hnsw", "query_vectors")))
	assert.Equal(t, float64(4), testutil.ToFloat64(c.applied.WithLabelValues("metadata/inverted")))
	assert.Equal(t, float64(512), testutil.ToFloat64(c.flushBytes.WithLabelValues("vector/flat")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.lookups.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.lookups.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.evictions.WithLabelValues(string(vecseg.EvictCorrupt))))

	// success and error query series plus the apply and flush series
	assert.Equal(t, 4, testutil.CollectAndCount(c.opLatency))

	n, err := testutil.GatherAndCount(reg, "test_instance_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestCollector_WithManager(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	m, err := vecseg.New(blobstore.NewMemoryStore(), vecseg.WithMetricsCollector(c))
	require.NoError(t, err)
	defer m.Close(ctx)

	col := model.Collection{ID: uuid.New(), Name: "prom", Dimension: 2}
	_, err = m.CreateCollection(ctx, col)
	require.NoError(t, err)

	for range 3 {
		_, err = m.SegmentFor(ctx, col.ID, model.ScopeVector)
		require.NoError(t, err)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(c.lookups.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.lookups.WithLabelValues("miss")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.constructs))
}
