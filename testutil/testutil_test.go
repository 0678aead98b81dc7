package testutil

import (
	"testing"

	"github.com/hupe1980/vecseg/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.LessOrEqual(t, v[0][0], float32(1.0))
	assert.GreaterOrEqual(t, v[1][0], float32(0.0))
}

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))

	// Check normalization
	for _, vec := range v {
		assert.InDelta(t, 1.0, Norm(vec), 1e-5)
	}
}

func TestClusteredVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.ClusteredVectors(100, 32, 5, 0.1)

	assert.Equal(t, 100, len(v))
	assert.Equal(t, 32, len(v[0]))
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.UniformVectors(1, 10)

	rng.Reset()
	v2 := rng.UniformVectors(1, 10)

	assert.Equal(t, v1, v2)
}

func TestDocuments(t *testing.T) {
	rng := NewRNG(42)

	docs := rng.Documents(1000, 10, 0.3)
	require.Len(t, docs, 1000)

	missing := 0
	for _, doc := range docs {
		assert.Contains(t, doc, "score")
		bucket, ok := doc["bucket"]
		if !ok {
			missing++
			continue
		}
		n, ok := bucket.AsInt64()
		require.True(t, ok)
		assert.GreaterOrEqual(t, n, int64(0))
		assert.Less(t, n, int64(10))
	}
	assert.InDelta(t, 300, missing, 60)
}

func TestIDs(t *testing.T) {
	assert.Equal(t, []string{"v-0", "v-1", "v-2"}, IDs("v", 3))

	ids := IDs("v", 11)
	assert.Equal(t, "v-00", ids[0])
	assert.Equal(t, "v-10", ids[10])
	assert.Empty(t, IDs("v", 0))
}

func TestExactTopK(t *testing.T) {
	ids := []string{"c", "a", "b"}
	vectors := [][]float32{{10, 10, 10}, {0, 0, 0}, {1, 0, 0}}

	got := ExactTopK(ids, vectors, []float32{0, 0, 0}, 2, distance.SquaredL2)
	assert.Equal(t, []SearchResult{{ID: "a", Distance: 0}, {ID: "b", Distance: 1}}, got)

	// Equal distances are ordered by id.
	got = ExactTopK([]string{"y", "x"}, [][]float32{{1, 0}, {0, 1}}, []float32{0, 0}, 2, distance.SquaredL2)
	assert.Equal(t, "x", got[0].ID)
}

func TestComputeRecall(t *testing.T) {
	truth := []SearchResult{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	approx := []SearchResult{{ID: "a"}, {ID: "c"}, {ID: "x"}, {ID: "y"}}

	assert.InDelta(t, 0.5, ComputeRecall(truth, approx), 1e-9)
	assert.InDelta(t, 1.0, ComputeRecall(nil, nil), 1e-9)
	assert.InDelta(t, 0.0, ComputeRecall(truth, nil), 1e-9)
}
