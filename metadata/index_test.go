package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCandidates(t *testing.T) {
	ix := NewIndex()
	ix.Add(0, Document{"color": String("red"), "size": Int(1)})
	ix.Add(1, Document{"color": String("blue"), "size": Float(2)})
	ix.Add(2, Document{"color": String("red"), "size": Int(2)})

	bm := ix.Candidates(Eq("color", String("red")))
	require.NotNil(t, bm)
	assert.Equal(t, []uint32{0, 2}, bm.ToArray())

	bm = ix.Candidates(Eq("size", Int(2)))
	assert.Equal(t, []uint32{1, 2}, bm.ToArray())

	bm = ix.Candidates(In("color", String("blue"), String("green")))
	assert.Equal(t, []uint32{1}, bm.ToArray())

	bm = ix.Candidates(And(Eq("color", String("red")), Eq("size", Int(2))))
	assert.Equal(t, []uint32{2}, bm.ToArray())

	// Range clause is ignored by AND narrowing
	bm = ix.Candidates(And(Eq("color", String("red")), Gt("size", Int(1))))
	assert.Equal(t, []uint32{0, 2}, bm.ToArray())

	bm = ix.Candidates(Or(Eq("color", String("blue")), Eq("size", Int(1))))
	assert.Equal(t, []uint32{0, 1}, bm.ToArray())

	assert.Nil(t, ix.Candidates(Or(Eq("color", String("blue")), Gt("size", Int(1)))))
	assert.Nil(t, ix.Candidates(Gt("size", Int(0))))
	assert.Nil(t, ix.Candidates(Not(Eq("color", String("red")))))

	assert.True(t, ix.Candidates(Eq("color", String("green"))).IsEmpty())
}

func TestIndexRemove(t *testing.T) {
	ix := NewIndex()
	doc := Document{"color": String("red")}
	ix.Add(7, doc)
	ix.Remove(7, doc)

	assert.True(t, ix.Candidates(Eq("color", String("red"))).IsEmpty())
	assert.Equal(t, 0, ix.GetStats().FieldCount)

	// Mutating a returned candidate set must not touch the posting list
	ix.Add(1, doc)
	bm := ix.Candidates(Eq("color", String("red")))
	bm.Add(99)
	assert.Equal(t, []uint32{1}, ix.Candidates(Eq("color", String("red"))).ToArray())
}

func TestIndexCandidates_AgreeWithMatchBeyondFloatPrecision(t *testing.T) {
	const big = 1 << 53
	docs := []Document{
		{"n": Int(big + 1)},
		{"n": Float(big)},
		{"n": Int(big)},
		{"n": Float(big + 2)},
	}
	ix := NewIndex()
	for i, d := range docs {
		ix.Add(uint32(i), d)
	}

	for _, w := range []Where{
		Eq("n", Float(big)),
		Eq("n", Int(big)),
		Eq("n", Int(big+1)),
		Eq("n", Int(big+3)),
		In("n", Float(big+2), Int(big+1)),
	} {
		var matched []uint32
		for i, d := range docs {
			if w.Match(d) {
				matched = append(matched, uint32(i))
			}
		}
		bm := ix.Candidates(w)
		require.NotNil(t, bm)
		if matched == nil {
			assert.True(t, bm.IsEmpty(), "%v", w)
			continue
		}
		assert.Equal(t, matched, bm.ToArray(), "%v", w)
	}
}
