package model

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/hupe1980/vecseg/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentType_Scope(t *testing.T) {
	assert.Equal(t, ScopeVector, SegmentTypeFlat.Scope())
	assert.Equal(t, ScopeVector, SegmentTypeHNSW.Scope())
	assert.Equal(t, ScopeMetadata, SegmentTypeMetadata.Scope())
	assert.Equal(t, Scope(""), SegmentType("graph/custom").Scope())

	assert.True(t, ScopeVector.Valid())
	assert.True(t, ScopeMetadata.Valid())
	assert.False(t, Scope("vector").Valid())
}

func TestSegment_ConfigInt(t *testing.T) {
	seg := Segment{Config: map[string]any{
		"int":     16,
		"int64":   int64(32),
		"float":   float64(64),
		"string":  "8",
		"null":    nil,
		"frac":    1.5,
		"garbage": "x",
		"bool":    true,
	}}

	tests := []struct {
		key  string
		want int
	}{
		{"int", 16},
		{"int64", 32},
		{"float", 64},
		{"string", 8},
		{"null", 7},
		{"missing", 7},
	}
	for _, tt := range tests {
		got, err := seg.ConfigInt(tt.key, 7)
		require.NoError(t, err, tt.key)
		assert.Equal(t, tt.want, got, tt.key)
	}

	for _, key := range []string{"frac", "garbage", "bool"} {
		_, err := seg.ConfigInt(key, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument, key)
	}
}

func TestSegment_ConfigString(t *testing.T) {
	seg := Segment{Config: map[string]any{"space": "cosine", "n": 3}}

	got, err := seg.ConfigString("space", "l2")
	require.NoError(t, err)
	assert.Equal(t, "cosine", got)

	got, err = seg.ConfigString("missing", "l2")
	require.NoError(t, err)
	assert.Equal(t, "l2", got)

	_, err = seg.ConfigString("n", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSegment_JSONKeepsConfigKinds(t *testing.T) {
	seg := Segment{
		ID:         uuid.New(),
		Type:       SegmentTypeHNSW,
		Scope:      ScopeVector,
		Collection: uuid.New(),
		Config: map[string]any{
			"hnsw:M":    16,
			"shard_key": int64(9007199254740993),
			"ratio":     float32(0.5),
			"space":     "ip",
			"tags":      []string{"x"},
		},
	}
	want := Segment{
		ID:         seg.ID,
		Type:       seg.Type,
		Scope:      seg.Scope,
		Collection: seg.Collection,
		Config: map[string]any{
			"hnsw:M":    int64(16),
			"shard_key": int64(9007199254740993),
			"ratio":     0.5,
			"space":     "ip",
			"tags":      []any{"x"},
		},
	}

	for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(seg)
			require.NoError(t, err)

			var got Segment
			require.NoError(t, c.Unmarshal(data, &got))
			assert.Equal(t, want, got)

			n, err := got.ConfigInt("hnsw:M", 0)
			require.NoError(t, err)
			assert.Equal(t, 16, n)
		})
	}

	t.Run("EmptyConfig", func(t *testing.T) {
		data, err := codec.GoJSON{}.Marshal(Segment{ID: seg.ID})
		require.NoError(t, err)
		assert.NotContains(t, string(data), "config")

		var got Segment
		require.NoError(t, codec.GoJSON{}.Unmarshal(data, &got))
		assert.Nil(t, got.Config)
	})

	t.Run("Unsupported", func(t *testing.T) {
		bad := seg
		bad.Config = map[string]any{"nan": math.NaN()}
		_, err := codec.JSON{}.Marshal(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestNormalizeConfig(t *testing.T) {
	got, err := NormalizeConfig(map[string]any{"a": uint16(3), "b": []int{1}, "c": nil})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(3), "b": []any{int64(1)}, "c": nil}, got)

	got, err = NormalizeConfig(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = NormalizeConfig(map[string]any{"big": uint64(math.MaxUint64)})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NormalizeConfig(map[string]any{"inf": math.Inf(1)})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSeqID(t *testing.T) {
	assert.Equal(t, -1, SeqID(1).Compare(2))
	assert.Equal(t, 0, SeqID(2).Compare(2))
	assert.Equal(t, 1, SeqID(3).Compare(2))

	// The string form sorts like the numbers.
	ids := []SeqID{100, 9, 18446744073709551615, 0, 10}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	slices.Sort(ids)
	slices.Sort(strs)
	for i, s := range strs {
		got, err := ParseSeqID(s)
		require.NoError(t, err)
		assert.Equal(t, ids[i], got)
	}
	assert.Len(t, SeqID(7).String(), 20)

	_, err := ParseSeqID("-1")
	assert.Error(t, err)
}

func TestOperation(t *testing.T) {
	for _, op := range []Operation{OpAdd, OpUpdate, OpUpsert, OpDelete} {
		assert.True(t, op.Valid())
		assert.NotEqual(t, "unknown", op.String())
	}
	assert.False(t, Operation(0).Valid())
	assert.False(t, Operation(9).Valid())
	assert.Equal(t, "unknown", Operation(9).String())
}

func TestErrors(t *testing.T) {
	err := CheckDimension(3, []float32{1, 2})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	var dm *DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
	assert.NoError(t, CheckDimension(2, []float32{1, 2}))

	cause := errors.New("boom")
	seg := Segment{ID: uuid.New(), Type: SegmentTypeHNSW, Scope: ScopeVector}
	ce := NewConstructionError(seg, cause)
	assert.ErrorIs(t, ce, ErrConstruction)
	assert.ErrorIs(t, ce, cause)
	assert.Contains(t, ce.Error(), seg.ID.String())

	de := &InvalidDescriptorError{Segment: seg, Reason: "duplicate segment id"}
	assert.ErrorIs(t, de, ErrInvalidArgument)
	assert.Contains(t, de.Error(), "duplicate segment id")

	assert.Equal(t, 5, *Limit(5))
}
