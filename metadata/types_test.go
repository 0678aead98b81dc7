package metadata

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerialization(t *testing.T) {
	tests := []struct {
		name string
		val  Value
	}{
		{"Null", Null()},
		{"Int", Int(123)},
		// {"Float", Float(3.14)}, // Float formatting might be slightly sensitive in JSON match, exact comparison preferred
		{"String", String("hello")},
		{"Bool", Bool(true)},
		{"Array", Array([]Value{Int(1), String("a")})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.val)
			require.NoError(t, err)

			var got Value
			err = json.Unmarshal(b, &got)
			require.NoError(t, err)

			if tt.val.Kind == KindString {
				assert.Equal(t, tt.val.StringValue(), got.StringValue())
			} else if tt.val.Kind == KindArray {
				assert.Equal(t, tt.val.Kind, got.Kind)
				assert.Equal(t, len(tt.val.A), len(got.A))
			} else {
				assert.Equal(t, tt.val, got)
			}
		})
	}

	// Float Test separately to avoid deep equal issues if any
	t.Run("Float", func(t *testing.T) {
		v := Float(3.14)
		b, err := json.Marshal(v)
		require.NoError(t, err)

		var got Value
		err = json.Unmarshal(b, &got)
		require.NoError(t, err)
		assert.Equal(t, KindFloat, got.Kind)
		assert.InDelta(t, 3.14, got.F64, 0.0001)
	})
}

func TestCloneIfNeeded(t *testing.T) {
	assert.Nil(t, CloneIfNeeded(nil))
	assert.Nil(t, CloneIfNeeded(Document{}))

	m := Document{"k": Int(1)}
	c := CloneIfNeeded(m)
	assert.NotNil(t, c)
	assert.NotSame(t, &m, &c) // Maps are references, but content should be cloned
	// c is a new map

	c["k"] = Int(2)
	assert.Equal(t, int64(1), m["k"].I64)
}

func TestKey(t *testing.T) {
	// Test Value.Key()
	assert.Equal(t, "null", Null().Key())
	assert.Equal(t, "i:1", Int(1).Key())
	// Float might be hex representation
	assert.Contains(t, Float(1.0).Key(), "f:")
	assert.Equal(t, "s:foo", String("foo").Key())
	assert.Equal(t, "b:1", Bool(true).Key())
	assert.Equal(t, "b:0", Bool(false).Key())

	// Array Key
	arr := Array([]Value{Int(1), Int(2)})
	// "a:i:1\x1fi:2" assuming separator is \x1f
	assert.Contains(t, arr.Key(), "a:i:1")
	assert.Contains(t, arr.Key(), "i:2")

	assert.Equal(t, "a:", Array([]Value{}).Key())
}

func TestIndexKeyNormalizesIntegralFloats(t *testing.T) {
	assert.Equal(t, indexKey(Int(3)), indexKey(Float(3)))
	assert.NotEqual(t, indexKey(Int(3)), indexKey(Float(3.5)))
	assert.Equal(t, "s:x", indexKey(String("x")))
}

func TestDocumentMerge(t *testing.T) {
	base := Document{"a": Int(1), "b": String("x")}

	merged := base.Merge(Document{"b": Null(), "c": Bool(true)})
	assert.Equal(t, Document{"a": Int(1), "c": Bool(true)}, merged)
	// base is untouched
	assert.Len(t, base, 2)

	assert.Nil(t, Document{"a": Int(1)}.Merge(Document{"a": Null()}))
	assert.Equal(t, Document{"x": Int(1)}, Document(nil).Merge(Document{"x": Int(1)}))
}

func TestDocumentValidate(t *testing.T) {
	require.NoError(t, Document{"a": Int(1)}.Validate())
	assert.Error(t, Document{"": Int(1)}.Validate())
	assert.Error(t, Document{"a": Value{}}.Validate())

	require.NoError(t, Document{"a": Array([]Value{Int(1), Float(2.5)})}.Validate())
	assert.Error(t, Document{"a": Float(math.NaN())}.Validate())
	assert.Error(t, Document{"a": Float(math.Inf(-1))}.Validate())
	assert.Error(t, Document{"a": Array([]Value{Int(1), Float(math.Inf(1))})}.Validate())
	assert.Error(t, Document{"a": Array([]Value{{Kind: Kind(42)}})}.Validate())
}

func TestFloatBitExactRoundTrip(t *testing.T) {
	for _, f := range []float64{0.1, 1.0 / 3.0, 1e-300, 123456789.123456789} {
		b, err := json.Marshal(Float(f))
		require.NoError(t, err)

		var got Value
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, f, got.F64)
	}
}

func TestValueAccessors(t *testing.T) {
	f, ok := Float(1.5).AsFloat64()
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)
	_, ok = Int(1).AsFloat64()
	assert.False(t, ok)

	s, ok := String("red").AsString()
	assert.True(t, ok)
	assert.Equal(t, "red", s)
	_, ok = Bool(true).AsString()
	assert.False(t, ok)

	b, ok := Bool(true).AsBool()
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = Null().AsBool()
	assert.False(t, ok)
}
