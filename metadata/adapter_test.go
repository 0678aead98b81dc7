package metadata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"value passthrough", Int(1), Int(1)},
		{"bool", false, Bool(false)},
		{"string", "hello", String("hello")},
		{"float64", 3.25, Float(3.25)},
		{"float32", float32(1.5), Float(1.5)},
		{"int", 1, Int(1)},
		{"int8", int8(-8), Int(-8)},
		{"int32", int32(1 << 30), Int(1 << 30)},
		{"int64 beyond float precision", int64(9007199254740993), Int(9007199254740993)},
		{"uint16", uint16(7), Int(7)},
		{"uint32 max", uint32(math.MaxUint32), Int(math.MaxUint32)},
		{"uint64 above uint32", uint64(math.MaxUint32 + 1), Int(math.MaxUint32 + 1)},
		{"uint64 max int64", uint64(math.MaxInt64), Int(math.MaxInt64)},
		{"strings", []string{"a", "b"}, Array([]Value{String("a"), String("b")})},
		{"ints", []int{1, 2}, Array([]Value{Int(1), Int(2)})},
		{"floats", []float64{1.5}, Array([]Value{Float(1.5)})},
		{"mixed", []any{1, "s", true}, Array([]Value{Int(1), String("s"), Bool(true)})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAny_Errors(t *testing.T) {
	for name, in := range map[string]any{
		"uint64 overflow": uint64(math.MaxInt64) + 1,
		"channel":         make(chan int),
		"bytes":           []byte("raw"),
		"nested map":      []any{map[string]any{"a": 1}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromAny(in)
			assert.Error(t, err)
		})
	}
}

func TestDocumentFromAny(t *testing.T) {
	doc, err := DocumentFromAny(map[string]any{"i": 123, "s": "foo"})
	require.NoError(t, err)
	assert.Equal(t, Document{"i": Int(123), "s": String("foo")}, doc)

	_, err = DocumentFromAny(map[string]any{"bad": make(chan int)})
	assert.ErrorContains(t, err, `"bad"`)

	doc, err = DocumentFromAny(nil)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestToMap(t *testing.T) {
	doc := Document{
		"s": String("x"),
		"i": Int(math.MaxInt64),
		"f": Float(1.5),
		"b": Bool(true),
		"a": Array([]Value{Int(1), String("y")}),
		"n": Null(),
	}
	m := doc.ToMap()
	assert.Equal(t, map[string]any{
		"s": "x",
		"i": int64(math.MaxInt64),
		"f": 1.5,
		"b": true,
		"a": []any{int64(1), "y"},
		"n": nil,
	}, m)

	back, err := DocumentFromAny(m)
	require.NoError(t, err)
	assert.Equal(t, doc, back)

	assert.Nil(t, Document(nil).ToMap())
}
