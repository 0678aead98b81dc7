package meta

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg/blobstore"
	"github.com/hupe1980/vecseg/internal/compress"
	"github.com/hupe1980/vecseg/metadata"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
	"github.com/hupe1980/vecseg/testutil"
)

func testDescriptor() model.Segment {
	return model.Segment{
		ID:         uuid.New(),
		Type:       model.SegmentTypeMetadata,
		Scope:      model.ScopeMetadata,
		Collection: uuid.New(),
	}
}

func testEnv() segment.Env {
	return segment.Env{Store: blobstore.NewMemoryStore(), Compression: compress.LZ4}.WithDefaults()
}

func openSegment(t *testing.T, env segment.Env, desc model.Segment) *Segment {
	t.Helper()
	s, err := New(context.Background(), desc, env)
	require.NoError(t, err)
	return s
}

func text(s string) *string { return &s }

func rec(seq model.SeqID, id string, op model.Operation, doc metadata.Document, document *string) model.LogRecord {
	return model.LogRecord{SeqID: seq, ID: id, Operation: op, Metadata: doc, Document: document}
}

func color(c string) metadata.Document {
	return metadata.Document{"color": metadata.String(c)}
}

func ids(records []model.MetadataEmbeddingRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func colorSegment(t *testing.T) *Segment {
	t.Helper()
	s := openSegment(t, testEnv(), testDescriptor())
	require.NoError(t, s.Apply(context.Background(), []model.LogRecord{
		rec(1, "c", model.OpAdd, color("red"), nil),
		rec(2, "a", model.OpAdd, color("red"), text("apples are red")),
		rec(3, "b", model.OpAdd, color("blue"), text("the sky is blue")),
	}))
	return s
}

func TestGetMetadata_ColorPaging(t *testing.T) {
	ctx := context.Background()
	s := colorSegment(t)
	red := metadata.Eq("color", metadata.String("red"))

	got, err := s.GetMetadata(ctx, model.MetadataQuery{Where: red})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(got))

	got, err = s.GetMetadata(ctx, model.MetadataQuery{Where: red, Limit: model.Limit(1), Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got))
	assert.Equal(t, model.SeqID(1), got[0].SeqID)
	assert.Equal(t, color("red"), got[0].Metadata)
	assert.Nil(t, got[0].Document)
}

func TestGetMetadata_EdgeCases(t *testing.T) {
	ctx := context.Background()
	s := colorSegment(t)

	got, err := s.GetMetadata(ctx, model.MetadataQuery{Offset: 10})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = s.GetMetadata(ctx, model.MetadataQuery{Limit: model.Limit(0)})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.GetMetadata(ctx, model.MetadataQuery{Offset: -1})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = s.GetMetadata(ctx, model.MetadataQuery{Limit: model.Limit(-1)})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = s.GetMetadata(ctx, model.MetadataQuery{Where: metadata.And(metadata.Eq("color", metadata.String("red")))})
	assert.ErrorIs(t, err, model.ErrInvalidFilter)

	_, err = s.GetMetadata(ctx, model.MetadataQuery{WhereDocument: metadata.Contains("")})
	assert.ErrorIs(t, err, model.ErrInvalidFilter)

	// Empty where with ids is an id lookup.
	got, err = s.GetMetadata(ctx, model.MetadataQuery{IDs: []string{"c", "missing", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(got))

	// A non-nil empty id list matches nothing.
	got, err = s.GetMetadata(ctx, model.MetadataQuery{IDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, got)

	all, err := s.GetMetadata(ctx, model.MetadataQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))
}

func TestGetMetadata_Conjunction(t *testing.T) {
	ctx := context.Background()
	s := colorSegment(t)

	tests := []struct {
		name  string
		query model.MetadataQuery
		want  []string
	}{
		{
			name:  "where and document",
			query: model.MetadataQuery{Where: metadata.Eq("color", metadata.String("red")), WhereDocument: metadata.Contains("apples")},
			want:  []string{"a"},
		},
		{
			name:  "not contains matches missing documents",
			query: model.MetadataQuery{WhereDocument: metadata.NotContains("sky")},
			want:  []string{"a", "c"},
		},
		{
			name:  "where and ids",
			query: model.MetadataQuery{Where: metadata.Eq("color", metadata.String("red")), IDs: []string{"b", "c"}},
			want:  []string{"c"},
		},
		{
			name:  "ne skips missing keys",
			query: model.MetadataQuery{Where: metadata.Ne("shape", metadata.String("round"))},
			want:  []string{},
		},
		{
			name:  "not matches missing keys",
			query: model.MetadataQuery{Where: metadata.Not(metadata.Eq("shape", metadata.String("round")))},
			want:  []string{"a", "b", "c"},
		},
		{
			name: "or of in and document",
			query: model.MetadataQuery{
				Where:         metadata.Or(metadata.In("color", metadata.String("blue")), metadata.Eq("color", metadata.String("green"))),
				WhereDocument: metadata.DocOr(metadata.Contains("sky"), metadata.Contains("grass")),
			},
			want: []string{"b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetMetadata(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestGetMetadata_PagingPartitions(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(1)
	s := openSegment(t, testEnv(), testDescriptor())

	const n = 500
	docs := rng.Documents(n, 5, 0.2)
	batch := make([]model.LogRecord, n)
	for i := range batch {
		// Insert out of id order.
		id := fmt.Sprintf("r%03d", (i*7)%n)
		batch[i] = rec(model.SeqID(i+1), id, model.OpAdd, docs[i], nil)
	}
	require.NoError(t, s.Apply(ctx, batch))

	for _, where := range []metadata.Where{
		nil,
		metadata.Eq("bucket", metadata.Int(2)),
		metadata.In("bucket", metadata.Int(0), metadata.Int(4)),
		metadata.Gte("score", metadata.Float(0.5)),
	} {
		full, err := s.GetMetadata(ctx, model.MetadataQuery{Where: where})
		require.NoError(t, err)
		require.NotEmpty(t, full)

		var paged []string
		for offset := 0; ; offset += 7 {
			page, err := s.GetMetadata(ctx, model.MetadataQuery{Where: where, Limit: model.Limit(7), Offset: offset})
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			assert.LessOrEqual(t, len(page), 7)
			paged = append(paged, ids(page)...)
		}
		assert.Equal(t, ids(full), paged)
		assert.IsIncreasing(t, paged)

		// Every match satisfies the predicate, every non-match fails it.
		matched := make(map[string]bool, len(full))
		for _, r := range full {
			matched[r.ID] = true
		}
		all, err := s.GetMetadata(ctx, model.MetadataQuery{})
		require.NoError(t, err)
		require.Len(t, all, n)
		for _, r := range all {
			want := where == nil || where.Match(r.Metadata)
			assert.Equal(t, want, matched[r.ID], r.ID)
		}
	}
}

func TestApply_Operations(t *testing.T) {
	ctx := context.Background()
	s := openSegment(t, testEnv(), testDescriptor())

	require.NoError(t, s.Apply(ctx, []model.LogRecord{
		rec(1, "a", model.OpAdd, metadata.Document{"k": metadata.Int(1), "drop": metadata.Bool(true)}, text("first")),
		rec(2, "a", model.OpAdd, metadata.Document{"k": metadata.Int(9)}, nil),
		rec(3, "x", model.OpUpdate, metadata.Document{"k": metadata.Int(5)}, nil),
		rec(4, "a", model.OpUpdate, metadata.Document{"k": metadata.Int(2), "drop": metadata.Null()}, nil),
		rec(5, "b", model.OpUpsert, metadata.Document{"k": metadata.Int(3)}, nil),
		rec(6, "b", model.OpUpsert, nil, text("second")),
		rec(7, "c", model.OpAdd, nil, nil),
		rec(8, "c", model.OpDelete, nil, nil),
	}))

	got, err := s.GetMetadata(ctx, model.MetadataQuery{})
	require.NoError(t, err)
	assert.Equal(t, []model.MetadataEmbeddingRecord{
		{ID: "a", SeqID: 4, Metadata: metadata.Document{"k": metadata.Int(2)}, Document: text("first")},
		{ID: "b", SeqID: 6, Metadata: metadata.Document{"k": metadata.Int(3)}, Document: text("second")},
	}, got)

	// The inverted index follows updates.
	got, err = s.GetMetadata(ctx, model.MetadataQuery{Where: metadata.Eq("k", metadata.Int(1))})
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = s.GetMetadata(ctx, model.MetadataQuery{Where: metadata.Eq("k", metadata.Float(2))})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Results are copies.
	got[0].Metadata["k"] = metadata.Int(100)
	again, err := s.GetMetadata(ctx, model.MetadataQuery{IDs: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, metadata.Int(2), again[0].Metadata["k"])
}

func TestApply_Validation(t *testing.T) {
	ctx := context.Background()
	s := openSegment(t, testEnv(), testDescriptor())

	err := s.Apply(ctx, []model.LogRecord{
		rec(1, "a", model.OpAdd, color("red"), nil),
		rec(2, "b", model.OpAdd, metadata.Document{"": metadata.Int(1)}, nil),
	})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompaction(t *testing.T) {
	ctx := context.Background()
	s := openSegment(t, testEnv(), testDescriptor())

	batch := make([]model.LogRecord, 0, 200)
	for i := range 100 {
		batch = append(batch, rec(model.SeqID(i+1), fmt.Sprintf("r%03d", i), model.OpAdd, metadata.Document{"even": metadata.Bool(i%2 == 0)}, nil))
	}
	for i := range 70 {
		batch = append(batch, rec(model.SeqID(101+i), fmt.Sprintf("r%03d", i), model.OpDelete, nil, nil))
	}
	require.NoError(t, s.Apply(ctx, batch))

	assert.Len(t, s.state.ids, 30)
	got, err := s.GetMetadata(ctx, model.MetadataQuery{Where: metadata.Eq("even", metadata.Bool(true))})
	require.NoError(t, err)
	assert.Len(t, got, 15)
	assert.Equal(t, "r070", got[0].ID)

	stats, err := s.IndexStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), stats.TotalCardinality)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	env := testEnv()
	desc := testDescriptor()

	s := openSegment(t, env, desc)
	require.NoError(t, s.Apply(ctx, []model.LogRecord{
		rec(1, "a", model.OpAdd, metadata.Document{"n": metadata.Int(1), "f": metadata.Float(0.5), "tags": metadata.Array([]metadata.Value{metadata.String("x")})}, text("doc a")),
		rec(2, "b", model.OpAdd, color("blue"), nil),
	}))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Apply(ctx, []model.LogRecord{
		rec(3, "c", model.OpAdd, color("red"), text("doc c")),
		rec(4, "b", model.OpDelete, nil, nil),
	}))

	want, err := s.GetMetadata(ctx, model.MetadataQuery{})
	require.NoError(t, err)

	reopened := openSegment(t, env, desc)
	got, err := reopened.GetMetadata(ctx, model.MetadataQuery{})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	seq, err := reopened.MaxSeqID(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SeqID(4), seq)

	red, err := reopened.GetMetadata(ctx, model.MetadataQuery{Where: metadata.Eq("color", metadata.String("red"))})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(red))
}

func TestCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	env := testEnv()
	desc := testDescriptor()

	bad := snapshot{MaxSeqID: 2, Records: []model.MetadataEmbeddingRecord{{ID: "b"}, {ID: "a"}}}
	raw, err := env.Codec.Marshal(bad)
	require.NoError(t, err)
	frame, err := compress.Encode(raw, compress.None)
	require.NoError(t, err)
	require.NoError(t, env.Store.Put(ctx, segment.Prefix(desc.ID)+"snapshot", frame))

	_, err = New(ctx, desc, env)
	assert.ErrorIs(t, err, model.ErrCorrupt)
}

func TestCorruptIndexInvalidates(t *testing.T) {
	ctx := context.Background()
	env := testEnv()
	var invalidated []uuid.UUID
	env.Invalidate = func(id uuid.UUID, _ error) { invalidated = append(invalidated, id) }

	desc := testDescriptor()
	s := openSegment(t, env, desc)
	batch := make([]model.LogRecord, 0, 50)
	for i := range 50 {
		batch = append(batch, rec(model.SeqID(i+1), fmt.Sprintf("r%02d", i), model.OpAdd, color("green"), nil))
	}
	batch = append(batch, rec(51, "z", model.OpAdd, color("red"), nil))
	require.NoError(t, s.Apply(ctx, batch))

	// Simulate a lost delete: the record is gone but still indexed.
	ord := s.state.byID["z"]
	s.state.live.Remove(ord)

	_, err := s.GetMetadata(ctx, model.MetadataQuery{Where: metadata.Eq("color", metadata.String("red"))})
	assert.ErrorIs(t, err, model.ErrCorrupt)
	assert.Equal(t, []uuid.UUID{desc.ID}, invalidated)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	s := colorSegment(t)
	require.NoError(t, s.Close(ctx))

	_, err := s.GetMetadata(ctx, model.MetadataQuery{})
	assert.ErrorIs(t, err, model.ErrClosed)
	_, err = s.Count(ctx)
	assert.ErrorIs(t, err, model.ErrClosed)
}

func TestNew_RejectsVectorDescriptor(t *testing.T) {
	desc := testDescriptor()
	desc.Type, desc.Scope = model.SegmentTypeFlat, model.ScopeVector
	_, err := New(context.Background(), desc, testEnv())
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestRegister(t *testing.T) {
	reg := segment.NewRegistry()
	Register(reg)

	impl, err := reg.Build(context.Background(), testDescriptor(), model.Collection{}, testEnv())
	require.NoError(t, err)
	_, ok := impl.(segment.MetadataReader)
	assert.True(t, ok)
}

func TestConcurrentReads(t *testing.T) {
	ctx := context.Background()
	s := colorSegment(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				if i%2 == 0 {
					_ = s.Apply(ctx, []model.LogRecord{rec(model.SeqID(1000+i*100+j), fmt.Sprintf("w%d-%d", i, j), model.OpAdd, color("red"), nil)})
					continue
				}
				got, err := s.GetMetadata(ctx, model.MetadataQuery{Where: metadata.Eq("color", metadata.String("blue"))})
				assert.NoError(t, err)
				assert.Equal(t, []string{"b"}, ids(got))
			}
		}()
	}
	wg.Wait()
}
