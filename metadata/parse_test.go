package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestParseWhere(t *testing.T) {
	red := Document{"color": String("red"), "year": Int(2024)}
	blue := Document{"color": String("blue"), "year": Int(1999)}

	tests := []struct {
		name      string
		input     string
		matchRed  bool
		matchBlue bool
	}{
		{"implicit eq", `{"color": "red"}`, true, false},
		{"explicit op", `{"year": {"$gte": 2000}}`, true, false},
		{"implicit and", `{"color": "red", "year": {"$lt": 2000}}`, false, false},
		{"or", `{"$or": [{"color": "blue"}, {"year": 2024}]}`, true, true},
		{"and", `{"$and": [{"color": {"$ne": "green"}}, {"year": {"$gt": 1990}}]}`, true, true},
		{"in", `{"color": {"$in": ["blue", "green"]}}`, false, true},
		{"nin", `{"color": {"$nin": ["blue"]}}`, true, false},
		{"not", `{"$not": {"color": "red"}}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseWhere(decode(t, tt.input))
			require.NoError(t, err)
			require.NotNil(t, w)
			assert.Equal(t, tt.matchRed, w.Match(red))
			assert.Equal(t, tt.matchBlue, w.Match(blue))
		})
	}
}

func TestParseWhereErrors(t *testing.T) {
	inputs := []string{
		`{"$and": [{"a": 1}]}`,
		`{"$and": {"a": 1}}`,
		`{"$or": [1, 2]}`,
		`{"$xor": [{"a": 1}, {"b": 2}]}`,
		`{"a": {"$gt": "x"}}`,
		`{"a": {"$gt": 1, "$lt": 5}}`,
		`{"a": {"$like": "x"}}`,
		`{"a": {"$in": []}}`,
		`{"a": null}`,
		`{"$not": [1]}`,
		`{"$and": [{}, {"a": 1}]}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := ParseWhere(decode(t, in))
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}

	w, err := ParseWhere(nil)
	assert.NoError(t, err)
	assert.Nil(t, w)
}

func TestParseWhereDocument(t *testing.T) {
	text := "hello world"

	w, err := ParseWhereDocument(decode(t, `{"$or": [{"$contains": "bye"}, {"$not_contains": "moon"}]}`))
	require.NoError(t, err)
	assert.True(t, w.MatchDocument(&text))

	w, err = ParseWhereDocument(decode(t, `{"$contains": "hello"}`))
	require.NoError(t, err)
	assert.True(t, w.MatchDocument(&text))

	for _, in := range []string{
		`{"$contains": 1}`,
		`{"$contains": ""}`,
		`{"$contains": "a", "$not_contains": "b"}`,
		`{"$regex": "a"}`,
		`{"$and": [{"$contains": "a"}]}`,
	} {
		_, err := ParseWhereDocument(decode(t, in))
		assert.ErrorIs(t, err, ErrInvalidFilter, in)
	}

	w, err = ParseWhereDocument(map[string]any{})
	assert.NoError(t, err)
	assert.Nil(t, w)
}
